package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agentgate/internal/domain"
)

// FailoverInference tries inference providers in order and returns the
// first successful answer.
type FailoverInference struct {
	providers []domain.InferenceProvider
	logger    *slog.Logger
}

// NewFailoverInference creates a failover chain. At least one provider is required.
func NewFailoverInference(providers []domain.InferenceProvider, logger *slog.Logger) *FailoverInference {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverInference{
		providers: providers,
		logger:    logger,
	}
}

func (f *FailoverInference) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (f *FailoverInference) Infer(ctx context.Context, req domain.InferenceRequest) (string, error) {
	if len(f.providers) == 0 {
		return "", fmt.Errorf("failover chain is empty")
	}
	var lastErr error
	for i, p := range f.providers {
		text, err := p.Infer(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback provider", "provider", p.Name(), "attempt", i+1)
			}
			return text, nil
		}
		lastErr = err
		// The stage deadline covers the whole chain.
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("failover: provider failed, trying next", "provider", p.Name(), "attempt", i+1, "err", err)
	}
	return "", fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}
