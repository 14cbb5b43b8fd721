package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentgate/internal/domain"
)

const (
	DefaultModel = "@cf/meta/llama-3-8b-instruct"
	apiPrefix    = "/api/v1"
)

// Client talks to the inference worker. It serves as memory searcher,
// inference cache and inference provider.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	return NewClientWithHTTP(cfg, SharedHTTPClient(cfg.Timeout))
}

// NewClientWithHTTP lets callers and tests supply their own *http.Client.
func NewClientWithHTTP(cfg ClientConfig, client *http.Client) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		client:     client,
		logger:     cfg.Logger,
	}
}

func (c *Client) Name() string {
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		return "workers-ai(" + u.Host + ")"
	}
	return "workers-ai"
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

// Search returns the text of the best knowledge-search result, or "" when
// there is none.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	var out searchResponse
	if err := c.post(ctx, "/knowledge-search", searchRequest{Query: query}, &out); err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}
	if len(out.Results) == 0 {
		return "", nil
	}
	return out.Results[0].Text, nil
}

type cachedRequest struct {
	Prompt string `json:"prompt"`
}

// Lookup asks the cached-ai endpoint for a stored answer.
func (c *Client) Lookup(ctx context.Context, prompt string) (domain.CacheResult, error) {
	var out domain.CacheResult
	if err := c.post(ctx, "/cached-ai", cachedRequest{Prompt: prompt}, &out); err != nil {
		return domain.CacheResult{}, fmt.Errorf("cached ai: %w", err)
	}
	return out, nil
}

type aiRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Image  string `json:"image,omitempty"`
}

type aiResponse struct {
	Response string `json:"response"`
}

// Infer runs primary inference. An empty answer is not an error.
func (c *Client) Infer(ctx context.Context, req domain.InferenceRequest) (string, error) {
	var out aiResponse
	body := aiRequest{Prompt: req.Prompt, Model: c.model, Image: req.Image}
	if err := c.post(ctx, "/ai", body, &out); err != nil {
		return "", fmt.Errorf("ai: %w", err)
	}
	return out.Response, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := DoWithRetry(ctx, c.client, c.maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return req, nil
	}, c.logger)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
