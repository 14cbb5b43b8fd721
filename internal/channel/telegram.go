package channel

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agentgate/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSecretHeader carries the secret_token registered with setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Telegram normalizes Telegram Bot API webhook updates.
type Telegram struct {
	secret string
	logger *slog.Logger
	now    func() time.Time
}

type TelegramConfig struct {
	SecretToken string
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		secret: cfg.SecretToken,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

func (t *Telegram) Source() domain.Source { return domain.SourceTelegram }

// Verify compares the secret header in constant time. An adapter without a
// configured secret rejects everything.
func (t *Telegram) Verify(r *http.Request, _ []byte) error {
	if t.secret == "" {
		return fmt.Errorf("telegram: no secret token configured: %w", domain.ErrUnauthorized)
	}
	got := r.Header.Get(TelegramSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(t.secret)) != 1 {
		return fmt.Errorf("telegram: secret token mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

// Parse extracts text, the largest photo, or a voice note from a message update.
func (t *Telegram) Parse(agentID string, body []byte) (*domain.Envelope, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("telegram: %w: %v", domain.ErrMalformedPayload, err)
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		t.logger.Debug("telegram update without message", "update_id", update.UpdateID)
		return nil, nil
	}

	env := &domain.Envelope{
		AgentID:    agentID,
		Source:     domain.SourceTelegram,
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Username:   msg.From.UserName,
		MessageID:  strconv.Itoa(msg.MessageID),
		ReceivedAt: t.now(),
	}
	if env.Username == "" {
		env.Username = msg.From.FirstName
	}
	if msg.Chat != nil {
		env.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
	}

	switch {
	case msg.Text != "":
		env.ContentType = domain.ContentText
		env.Text = msg.Text
	case len(msg.Photo) > 0:
		// Telegram lists sizes smallest first.
		env.ContentType = domain.ContentImage
		env.MediaRef = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Voice != nil:
		env.ContentType = domain.ContentVoice
		env.MediaRef = msg.Voice.FileID
		env.MimeType = msg.Voice.MimeType
	default:
		return nil, nil
	}

	if !env.HasContent() {
		return nil, nil
	}
	return env, nil
}
