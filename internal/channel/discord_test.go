package channel

import (
	"errors"
	"net/http/httptest"
	"testing"

	"agentgate/internal/domain"
)

func TestDiscordVerify_AlwaysPasses(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})
	if err := d.Verify(httptest.NewRequest("POST", "/discord/a", nil), nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestDiscordParse_Text(t *testing.T) {
	body := `{"id":"m1","channel_id":"c1","content":"gm","author":{"id":"u1","username":"linus"}}`
	env, err := NewDiscord(DiscordConfig{Logger: testLogger()}).Parse("a", []byte(body))
	if err != nil || env == nil {
		t.Fatalf("expected envelope, got %v, %v", env, err)
	}
	if env.UserID != "u1" || env.ChatID != "c1" || env.MessageID != "m1" || env.Username != "linus" {
		t.Errorf("unexpected ids: %+v", env)
	}
	if env.ContentType != domain.ContentText || env.Text != "gm" {
		t.Errorf("unexpected content: %+v", env)
	}
}

func TestDiscordParse_Attachment(t *testing.T) {
	body := `{"id":"m1","channel_id":"c1","content":"","author":{"id":"u1"},"attachments":[{"id":"att1","filename":"a.txt","content_type":"text/plain","url":"https://cdn/a.txt"},{"id":"att2","filename":"b.png","content_type":"image/png","url":"https://cdn/b.png"}]}`
	env, err := NewDiscord(DiscordConfig{Logger: testLogger()}).Parse("a", []byte(body))
	if err != nil || env == nil {
		t.Fatalf("expected envelope, got %v, %v", env, err)
	}
	if env.ContentType != domain.ContentImage || env.MediaRef != "https://cdn/b.png" || env.MimeType != "image/png" {
		t.Errorf("unexpected attachment envelope: %+v", env)
	}
}

func TestDiscordParse_IgnoresBots(t *testing.T) {
	body := `{"id":"m1","channel_id":"c1","content":"beep","author":{"id":"b1","bot":true}}`
	env, err := NewDiscord(DiscordConfig{IgnoreBots: true, Logger: testLogger()}).Parse("a", []byte(body))
	if err != nil || env != nil {
		t.Fatalf("expected bot message to be ignored, got %v, %v", env, err)
	}

	env, err = NewDiscord(DiscordConfig{IgnoreBots: false, Logger: testLogger()}).Parse("a", []byte(body))
	if err != nil || env == nil {
		t.Fatalf("expected bot message when not ignoring bots, got %v, %v", env, err)
	}
}

func TestDiscordParse_NoContent(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})
	for _, body := range []string{
		`{"id":"m1","content":"   ","author":{"id":"u1"}}`,
		`{"id":"m1","content":"hi"}`,
	} {
		env, err := d.Parse("a", []byte(body))
		if err != nil || env != nil {
			t.Errorf("expected nothing for %s, got %v, %v", body, env, err)
		}
	}
	if _, err := d.Parse("a", []byte("[")); !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}
