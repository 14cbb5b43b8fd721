package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentgate/internal/upstream"
)

// StaticSource always answers with the same data.
type StaticSource struct {
	data string
}

func NewStaticSource(data string) *StaticSource {
	return &StaticSource{data: data}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Fetch(context.Context, string) (string, error) {
	return s.data, nil
}

// HTTPSource GETs a JSON document and returns its data field.
type HTTPSource struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	return NewHTTPSourceWithClient(cfg, upstream.SharedHTTPClient(cfg.Timeout))
}

func NewHTTPSourceWithClient(cfg HTTPConfig, client *http.Client) *HTTPSource {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPSource{url: cfg.URL, client: client, logger: cfg.Logger}
}

func (s *HTTPSource) Name() string { return "http(" + hostOf(s.url) + ")" }

// Fetch passes the message as the q parameter. A string data field is
// returned as is; any other JSON value is returned in its encoded form.
func (s *HTTPSource) Fetch(ctx context.Context, message string) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse ledger url: %w", err)
	}
	q := u.Query()
	q.Set("q", message)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read ledger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &upstream.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode ledger response: %w", err)
	}
	raw := strings.TrimSpace(string(out.Data))
	if raw == "" || raw == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(out.Data, &text); err == nil {
		return text, nil
	}
	return raw, nil
}
