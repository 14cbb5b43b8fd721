package channel

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"agentgate/internal/domain"
)

func newTestTelegram(secret string) *Telegram {
	tg := NewTelegram(TelegramConfig{SecretToken: secret, Logger: testLogger()})
	tg.now = func() time.Time { return time.Unix(1700000000, 0) }
	return tg
}

func TestTelegramVerify(t *testing.T) {
	tg := newTestTelegram("s3cret")

	r := httptest.NewRequest("POST", "/telegram/a1", nil)
	r.Header.Set(TelegramSecretHeader, "s3cret")
	if err := tg.Verify(r, nil); err != nil {
		t.Fatalf("expected valid secret to pass, got %v", err)
	}

	r.Header.Set(TelegramSecretHeader, "wrong")
	if err := tg.Verify(r, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	r.Header.Del(TelegramSecretHeader)
	if err := tg.Verify(r, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing header, got %v", err)
	}
}

func TestTelegramVerify_NoSecretFailsClosed(t *testing.T) {
	tg := newTestTelegram("")
	r := httptest.NewRequest("POST", "/telegram/a1", nil)
	if err := tg.Verify(r, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTelegramParse_Text(t *testing.T) {
	body := `{"update_id":1,"message":{"message_id":7,"from":{"id":42,"first_name":"Ada","username":"ada"},"chat":{"id":-100,"type":"group"},"date":1700000000,"text":"hello"}}`
	env, err := newTestTelegram("s").Parse("agent-1", []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if env == nil {
		t.Fatal("expected envelope")
	}
	if env.AgentID != "agent-1" || env.Source != domain.SourceTelegram {
		t.Errorf("unexpected routing fields: %+v", env)
	}
	if env.UserID != "42" || env.ChatID != "-100" || env.MessageID != "7" {
		t.Errorf("unexpected ids: %+v", env)
	}
	if env.Username != "ada" {
		t.Errorf("expected username ada, got %q", env.Username)
	}
	if env.ContentType != domain.ContentText || env.Text != "hello" {
		t.Errorf("unexpected content: %+v", env)
	}
}

func TestTelegramParse_UsernameFallsBackToFirstName(t *testing.T) {
	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":1,"first_name":"Ada"},"chat":{"id":1},"text":"hi"}}`
	env, err := newTestTelegram("s").Parse("a", []byte(body))
	if err != nil || env == nil {
		t.Fatalf("expected envelope, got %v, %v", env, err)
	}
	if env.Username != "Ada" {
		t.Errorf("expected first name fallback, got %q", env.Username)
	}
}

func TestTelegramParse_LargestPhoto(t *testing.T) {
	body := `{"update_id":2,"message":{"message_id":8,"from":{"id":42,"first_name":"Ada"},"chat":{"id":42},"photo":[{"file_id":"small","width":90,"height":90},{"file_id":"large","width":1280,"height":1280}]}}`
	env, err := newTestTelegram("s").Parse("a", []byte(body))
	if err != nil || env == nil {
		t.Fatalf("expected envelope, got %v, %v", env, err)
	}
	if env.ContentType != domain.ContentImage || env.MediaRef != "large" {
		t.Errorf("expected largest photo, got %+v", env)
	}
	if p := env.Payload(); p.FileID != "large" || p.MediaID != "" {
		t.Errorf("telegram media should travel as fileId, got %+v", p)
	}
}

func TestTelegramParse_Voice(t *testing.T) {
	body := `{"update_id":3,"message":{"message_id":9,"from":{"id":42,"first_name":"Ada"},"chat":{"id":42},"voice":{"file_id":"v1","duration":3,"mime_type":"audio/ogg"}}}`
	env, err := newTestTelegram("s").Parse("a", []byte(body))
	if err != nil || env == nil {
		t.Fatalf("expected envelope, got %v, %v", env, err)
	}
	if env.ContentType != domain.ContentVoice || env.MediaRef != "v1" || env.MimeType != "audio/ogg" {
		t.Errorf("unexpected voice envelope: %+v", env)
	}
}

func TestTelegramParse_NoContent(t *testing.T) {
	cases := map[string]string{
		"edited message": `{"update_id":4,"edited_message":{"message_id":1,"from":{"id":1},"chat":{"id":1},"text":"x"}}`,
		"sticker only":   `{"update_id":5,"message":{"message_id":1,"from":{"id":1},"chat":{"id":1},"sticker":{"file_id":"st"}}}`,
		"no sender":      `{"update_id":6,"message":{"message_id":1,"chat":{"id":1},"text":"x"}}`,
	}
	tg := newTestTelegram("s")
	for name, body := range cases {
		env, err := tg.Parse("a", []byte(body))
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
		if env != nil {
			t.Errorf("%s: expected no envelope, got %+v", name, env)
		}
	}
}

func TestTelegramParse_Malformed(t *testing.T) {
	_, err := newTestTelegram("s").Parse("a", []byte("{not json"))
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}
