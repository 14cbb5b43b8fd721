package domain

import "time"

// Source identifies the platform an envelope came from.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceWhatsApp Source = "whatsapp"
	SourceDiscord  Source = "discord"
	SourceSocket   Source = "socket"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceTelegram, SourceWhatsApp, SourceDiscord, SourceSocket:
		return true
	}
	return false
}

// ContentType classifies the user content carried by an envelope.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVoice ContentType = "voice"
)

// Envelope is the normalized record every channel adapter produces.
// Downstream code must never look at platform-specific fields.
type Envelope struct {
	AgentID     string
	Source      Source
	UserID      string
	ChatID      string // optional
	Username    string // optional
	MessageID   string // optional
	ContentType ContentType
	Text        string // set when ContentType is text
	MediaRef    string // platform file/media id for image and voice
	MimeType    string // optional
	ReceivedAt  time.Time
}

// HasContent reports whether the envelope carries anything worth forwarding.
func (e *Envelope) HasContent() bool {
	if e == nil {
		return false
	}
	if e.ContentType == ContentText {
		return e.Text != ""
	}
	return e.MediaRef != ""
}

// ForwardPayload is the JSON body Agent Dispatch receives on POST /message.
type ForwardPayload struct {
	AgentID    string `json:"agentId"`
	Source     string `json:"source"`
	UserID     string `json:"userId,omitempty"`
	ChatID     string `json:"chatId,omitempty"`
	Username   string `json:"username,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	FileID     string `json:"fileId,omitempty"`
	MediaID    string `json:"mediaId,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	ReceivedAt string `json:"receivedAt,omitempty"`
}

// Payload converts the envelope into its wire form. WhatsApp media is
// addressed by mediaId, every other platform by fileId.
func (e Envelope) Payload() ForwardPayload {
	p := ForwardPayload{
		AgentID:   e.AgentID,
		Source:    string(e.Source),
		UserID:    e.UserID,
		ChatID:    e.ChatID,
		Username:  e.Username,
		MessageID: e.MessageID,
		Type:      string(e.ContentType),
		MimeType:  e.MimeType,
	}
	if !e.ReceivedAt.IsZero() {
		p.ReceivedAt = e.ReceivedAt.UTC().Format(time.RFC3339)
	}
	switch {
	case e.ContentType == ContentText:
		p.Content = e.Text
	case e.Source == SourceWhatsApp:
		p.MediaID = e.MediaRef
	default:
		p.FileID = e.MediaRef
	}
	return p
}

// Envelope rebuilds an envelope from its wire form.
func (p ForwardPayload) Envelope() Envelope {
	e := Envelope{
		AgentID:     p.AgentID,
		Source:      Source(p.Source),
		UserID:      p.UserID,
		ChatID:      p.ChatID,
		Username:    p.Username,
		MessageID:   p.MessageID,
		ContentType: ContentType(p.Type),
		Text:        p.Content,
		MimeType:    p.MimeType,
	}
	if p.MediaID != "" {
		e.MediaRef = p.MediaID
	} else {
		e.MediaRef = p.FileID
	}
	if t, err := time.Parse(time.RFC3339, p.ReceivedAt); err == nil {
		e.ReceivedAt = t
	}
	return e
}
