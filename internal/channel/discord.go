package channel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agentgate/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// Discord normalizes Discord message objects relayed to the webhook.
type Discord struct {
	ignoreBots bool
	logger     *slog.Logger
	now        func() time.Time
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	IgnoreBots bool
	Logger     *slog.Logger
}

// NewDiscord creates a new Discord adapter.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		ignoreBots: cfg.IgnoreBots,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

func (d *Discord) Source() domain.Source { return domain.SourceDiscord }

// Verify always passes: relayed Discord messages have no signature scheme.
func (d *Discord) Verify(*http.Request, []byte) error { return nil }

func (d *Discord) Parse(agentID string, body []byte) (*domain.Envelope, error) {
	var m discordgo.Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("discord: %w: %v", domain.ErrMalformedPayload, err)
	}
	if m.Author == nil {
		return nil, nil
	}
	if d.ignoreBots && m.Author.Bot {
		d.logger.Debug("discord bot message ignored", "author", m.Author.ID)
		return nil, nil
	}

	env := &domain.Envelope{
		AgentID:    agentID,
		Source:     domain.SourceDiscord,
		UserID:     m.Author.ID,
		Username:   m.Author.Username,
		ChatID:     m.ChannelID,
		MessageID:  m.ID,
		ReceivedAt: d.now(),
	}

	if text := strings.TrimSpace(m.Content); text != "" {
		env.ContentType = domain.ContentText
		env.Text = m.Content
		return env, nil
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		switch {
		case strings.HasPrefix(a.ContentType, "image/"):
			env.ContentType = domain.ContentImage
		case strings.HasPrefix(a.ContentType, "audio/"):
			env.ContentType = domain.ContentVoice
		default:
			continue
		}
		env.MediaRef = a.URL
		if env.MediaRef == "" {
			env.MediaRef = a.ID
		}
		env.MimeType = a.ContentType
		if env.HasContent() {
			return env, nil
		}
	}
	return nil, nil
}
