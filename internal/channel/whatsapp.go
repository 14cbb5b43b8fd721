package channel

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"agentgate/internal/domain"
)

// WhatsAppSignatureHeader carries the Meta app signature of the raw body.
const WhatsAppSignatureHeader = "X-Hub-Signature-256"

// WhatsApp normalizes WhatsApp Business Cloud API webhooks.
type WhatsApp struct {
	appSecret   string
	verifyToken string
	logger      *slog.Logger
	now         func() time.Time
}

type WhatsAppConfig struct {
	AppSecret   string
	VerifyToken string
	Logger      *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

func (w *WhatsApp) Source() domain.Source { return domain.SourceWhatsApp }

// Verify requires a valid HMAC-SHA256 signature of the raw body.
func (w *WhatsApp) Verify(r *http.Request, body []byte) error {
	sig := r.Header.Get(WhatsAppSignatureHeader)
	if sig == "" {
		return fmt.Errorf("whatsapp: missing signature: %w", domain.ErrUnauthorized)
	}
	if !verifyHMAC(body, w.appSecret, sig) {
		return fmt.Errorf("whatsapp: invalid signature: %w", domain.ErrUnauthorized)
	}
	return nil
}

// Parse reads the first message of the first change. Status callbacks
// carry no messages and produce nothing.
func (w *WhatsApp) Parse(agentID string, body []byte) (*domain.Envelope, error) {
	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("whatsapp: %w: %v", domain.ErrMalformedPayload, err)
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, nil
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, nil
	}
	msg := value.Messages[0]

	env := &domain.Envelope{
		AgentID:    agentID,
		Source:     domain.SourceWhatsApp,
		UserID:     msg.From,
		ChatID:     msg.From,
		MessageID:  msg.ID,
		ReceivedAt: w.now(),
	}
	if len(value.Contacts) > 0 {
		env.Username = value.Contacts[0].Profile.Name
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil, nil
		}
		env.ContentType = domain.ContentText
		env.Text = msg.Text.Body
	case "image":
		if msg.Image == nil {
			return nil, nil
		}
		env.ContentType = domain.ContentImage
		env.MediaRef = msg.Image.ID
		env.MimeType = msg.Image.MimeType
	case "audio", "voice":
		media := msg.Audio
		if media == nil {
			media = msg.Voice
		}
		if media == nil {
			return nil, nil
		}
		env.ContentType = domain.ContentVoice
		env.MediaRef = media.ID
		env.MimeType = media.MimeType
	default:
		w.logger.Debug("whatsapp message type ignored", "type", msg.Type)
		return nil, nil
	}

	if !env.HasContent() {
		return nil, nil
	}
	return env, nil
}

// VerifyChallenge answers the hub.challenge handshake Meta performs when a
// webhook URL is registered.
func (w *WhatsApp) VerifyChallenge(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode == "subscribe" && w.verifyToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(w.verifyToken)) == 1 {
		w.logger.Info("whatsapp webhook verified", "agent_id", r.PathValue("agentId"))
		rw.Header().Set("Content-Type", "text/plain")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(q.Get("hub.challenge")))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Contacts         []waContact `json:"contacts"`
	Messages         []waMessage `json:"messages"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Text      *waText  `json:"text,omitempty"`
	Image     *waMedia `json:"image,omitempty"`
	Audio     *waMedia `json:"audio,omitempty"`
	Voice     *waMedia `json:"voice,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}
