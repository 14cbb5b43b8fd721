package upstream

import (
	"log/slog"
	"time"

	"agentgate/internal/config"
	"agentgate/internal/domain"
)

// NewInference builds the inference provider for cfg. Fallback URLs turn
// the primary client into the head of a failover chain.
func NewInference(cfg config.UpstreamConfig, timeout time.Duration, logger *slog.Logger) domain.InferenceProvider {
	primary := NewClient(ClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: timeout,
		Logger:  logger,
	})
	if len(cfg.FallbackURLs) == 0 {
		return primary
	}

	chain := []domain.InferenceProvider{primary}
	for _, u := range cfg.FallbackURLs {
		chain = append(chain, NewClient(ClientConfig{
			BaseURL: u,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: timeout,
			Logger:  logger,
		}))
	}
	return NewFailoverInference(chain, logger)
}
