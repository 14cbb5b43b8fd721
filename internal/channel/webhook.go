package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"agentgate/internal/config"
	"agentgate/internal/domain"
)

// FromConfig builds an adapter for every enabled channel. Disabled
// channels are absent from the map, so the router answers them with 404.
func FromConfig(cfg config.ChannelsConfig, logger *slog.Logger) map[domain.Source]domain.Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	adapters := make(map[domain.Source]domain.Adapter)
	if cfg.Telegram.Enabled {
		adapters[domain.SourceTelegram] = NewTelegram(TelegramConfig{
			SecretToken: cfg.Telegram.SecretToken,
			Logger:      logger,
		})
	}
	if cfg.WhatsApp.Enabled {
		adapters[domain.SourceWhatsApp] = NewWhatsApp(WhatsAppConfig{
			AppSecret:   cfg.WhatsApp.AppSecret,
			VerifyToken: cfg.WhatsApp.VerifyToken,
			Logger:      logger,
		})
	}
	if cfg.Discord.Enabled {
		adapters[domain.SourceDiscord] = NewDiscord(DiscordConfig{
			IgnoreBots: cfg.Discord.IgnoreBots,
			Logger:     logger,
		})
	}
	return adapters
}

// verifyHMAC checks a "sha256=<hex>" signature of body.
func verifyHMAC(body []byte, secret, signature string) bool {
	if secret == "" || !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign returns the X-Hub-Signature-256 value for body. Used by tests and the CLI.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
