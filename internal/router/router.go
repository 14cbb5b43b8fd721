// Package router exposes the per-platform webhook endpoints and hands
// normalized envelopes to Agent Dispatch.
package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agentgate/internal/domain"
	"agentgate/internal/metrics"
)

// MaxBodyBytes caps webhook bodies.
const MaxBodyBytes = 1 << 20

// Result is the outcome of routing one webhook call.
type Result struct {
	Status int    `json:"-"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Config wires a Router.
type Config struct {
	Adapters           map[domain.Source]domain.Adapter
	Dispatcher         domain.Dispatcher
	RateLimitPerMinute float64
	RateBurst          int
	Metrics            *metrics.Collector
	Logger             *slog.Logger
}

// Router is stateless per request: it forwards each envelope once and keeps nothing.
type Router struct {
	adapters   map[domain.Source]domain.Adapter
	dispatcher domain.Dispatcher
	limiter    *agentLimiter
	metrics    *metrics.Collector
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Adapters == nil {
		cfg.Adapters = map[domain.Source]domain.Adapter{}
	}
	return &Router{
		adapters:   cfg.Adapters,
		dispatcher: cfg.Dispatcher,
		limiter:    newAgentLimiter(cfg.RateLimitPerMinute, cfg.RateBurst),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Register mounts the webhook routes on mux.
func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", rt.handleIndex)
	mux.HandleFunc("POST /{channel}/{agentId}", rt.handleWebhook)
	mux.HandleFunc("GET /whatsapp/{agentId}", rt.handleWhatsAppVerify)
	mux.HandleFunc("/", rt.handleFallback)
}

// Handler returns a mux serving only the webhook routes.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return mux
}

// Route authenticates, normalizes and forwards one webhook request.
func (rt *Router) Route(ctx context.Context, source domain.Source, agentID string, r *http.Request) Result {
	adapter, ok := rt.adapters[source]
	if !ok {
		return Result{Status: http.StatusNotFound, Error: "unknown channel"}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return Result{Status: http.StatusBadRequest, Error: "cannot read body"}
	}
	if len(body) > MaxBodyBytes {
		return Result{Status: http.StatusRequestEntityTooLarge, Error: "body too large"}
	}

	if err := adapter.Verify(r, body); err != nil {
		rt.logger.Warn("webhook rejected", "source", source, "agent_id", agentID, "err", err)
		return Result{Status: http.StatusUnauthorized, Error: "unauthorized"}
	}

	env, err := adapter.Parse(agentID, body)
	if err != nil {
		// Acked so the platform does not redeliver a body we can never read.
		rt.logger.Warn("webhook payload ignored", "source", source, "agent_id", agentID, "err", err)
		return Result{Status: http.StatusOK, OK: true}
	}
	if !env.HasContent() {
		rt.logger.Debug("webhook without user content", "source", source, "agent_id", agentID)
		return Result{Status: http.StatusOK, OK: true}
	}

	// Only forwardable envelopes spend tokens; callbacks without content are always acked.
	if !rt.limiter.Allow(string(source)+"/"+agentID, rt.now()) {
		rt.metrics.RateLimited(string(source))
		rt.logger.Warn("webhook rate limited", "source", source, "agent_id", agentID)
		return Result{Status: http.StatusTooManyRequests, Error: "rate limited"}
	}

	rt.metrics.Envelope(string(source))
	if err := rt.dispatcher.Forward(ctx, *env); err != nil {
		rt.metrics.DispatchError(rt.dispatcher.Name())
		rt.logger.Error("forward to agent dispatch failed",
			"source", source, "agent_id", agentID, "backend", rt.dispatcher.Name(), "err", err)
		return Result{Status: http.StatusInternalServerError, Error: "Failed to process message"}
	}

	rt.logger.Info("message forwarded",
		"source", source, "agent_id", agentID, "type", env.ContentType, "user_id", env.UserID)
	return Result{Status: http.StatusOK, OK: true}
}

func (rt *Router) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	source := domain.Source(r.PathValue("channel"))
	label := string(source)
	if _, ok := rt.adapters[source]; !ok {
		label = "unknown"
	}
	defer func() {
		if p := recover(); p != nil {
			rt.logger.Error("webhook handler panic", "source", source, "panic", p)
			rt.metrics.WebhookResponse(label, http.StatusInternalServerError)
			writeJSON(rw, http.StatusInternalServerError, Result{Error: "Internal server error"})
		}
	}()

	res := rt.Route(r.Context(), source, r.PathValue("agentId"), r)
	rt.metrics.WebhookResponse(label, res.Status)
	writeJSON(rw, res.Status, res)
}

func (rt *Router) handleWhatsAppVerify(rw http.ResponseWriter, r *http.Request) {
	wa, ok := rt.adapters[domain.SourceWhatsApp].(interface {
		VerifyChallenge(http.ResponseWriter, *http.Request)
	})
	if !ok {
		writeJSON(rw, http.StatusNotFound, Result{Error: "unknown channel"})
		return
	}
	wa.VerifyChallenge(rw, r)
}

// handleFallback answers requests no route matched, so clients always get JSON.
func (rt *Router) handleFallback(rw http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) == 2 && segments[0] != "" && segments[1] != "" && r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		writeJSON(rw, http.StatusMethodNotAllowed, Result{Error: "method not allowed"})
		return
	}
	writeJSON(rw, http.StatusNotFound, Result{Error: "not found"})
}

func (rt *Router) handleIndex(rw http.ResponseWriter, _ *http.Request) {
	endpoints := []string{}
	for _, src := range []domain.Source{domain.SourceTelegram, domain.SourceWhatsApp, domain.SourceDiscord} {
		if _, ok := rt.adapters[src]; ok {
			endpoints = append(endpoints, "POST /"+string(src)+"/{agentId}")
		}
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"service":   "agentgate",
		"version":   Version,
		"endpoints": endpoints,
	})
}

// Version is reported by the index route. Overridden at build time.
var Version = "dev"

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
