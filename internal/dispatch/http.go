// Package dispatch forwards normalized envelopes to Agent Dispatch over one
// of several backends.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agentgate/internal/domain"
	"agentgate/internal/upstream"
)

// HTTP posts each envelope to {baseURL}/message.
type HTTP struct {
	endpoint   string
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

type HTTPConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	return NewHTTPWithClient(cfg, upstream.SharedHTTPClient(cfg.Timeout))
}

func NewHTTPWithClient(cfg HTTPConfig, client *http.Client) *HTTP {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTP{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/message",
		maxRetries: cfg.MaxRetries,
		client:     client,
		logger:     cfg.Logger,
	}
}

func (h *HTTP) Name() string { return "http" }

// Forward sends the envelope and treats any non-2xx answer as a failure.
func (h *HTTP) Forward(ctx context.Context, env domain.Envelope) error {
	body, err := json.Marshal(env.Payload())
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrDispatch, err)
	}

	resp, err := upstream.DoWithRetry(ctx, h.client, h.maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, h.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDispatch, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
