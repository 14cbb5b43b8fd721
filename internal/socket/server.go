// Package socket is the WebSocket transport: clients exchange JSON
// {event, data} frames with the brain instead of going through a webhook.
package socket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"agentgate/internal/domain"
	"agentgate/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Events exchanged with clients.
const (
	EventConnected    = "agent_connected"
	EventSpeech       = "user_sends_speech"
	EventProcessing   = "agent_processing"
	EventResponse     = "agent_speaks_response"
	EventSDKRequest   = "user_requests_sdk"
	EventBuildingSDK  = "agent_building_sdk"
	EventSDKDelivered = "agent_delivers_sdk"
	EventError        = "agent_error"
)

const (
	maxFrameBytes = 64 << 10
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	processBudget = 30 * time.Second

	// DefaultMaxInflight bounds the events one client may have in progress.
	DefaultMaxInflight = 4
)

// Frame is the wire unit in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Config struct {
	Processor      domain.Processor
	AllowedOrigins []string // empty means same-origin only; "*" allows any
	MaxInflight    int      // per client; DefaultMaxInflight when zero
	Metrics        *metrics.Collector
	Logger         *slog.Logger
}

type Server struct {
	processor domain.Processor
	registry  *Registry
	upgrader  websocket.Upgrader
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
	inflight  int

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = DefaultMaxInflight
	}
	s := &Server{
		processor: cfg.Processor,
		inflight:  cfg.MaxInflight,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
	s.registry = NewRegistry(cfg.Metrics.SocketClients)
	return s
}

// originChecker returns nil for an empty list so gorilla applies its
// same-origin rule.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (s *Server) Registry() *Registry { return s.registry }

// Register mounts the WebSocket endpoint at path.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if path == "" {
		path = "/socket"
	}
	mux.HandleFunc("GET "+path, s.handleUpgrade)
}

// HealthHandler reports liveness and the number of connected clients.
func (s *Server) HealthHandler() http.Handler {
	return http.HandlerFunc(s.handleHealth)
}

// Close disconnects every client and waits for their handlers to return.
// New upgrades are refused from the moment Close starts.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.registry.Close()
	s.wg.Wait()
	return nil
}

// track counts a connection handler unless the server is closing.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"status":           "ok",
		"timestamp":        s.timestamp(),
		"connectedClients": s.registry.Len(),
	})
}

func (s *Server) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(rw, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := newClient(uuid.NewString(), conn, s.inflight)
	n, ok := s.registry.Add(client)
	if !ok {
		client.close()
		return
	}
	s.logger.Info("socket client connected", "client_id", client.id, "clients", n)
	s.serve(client)
}

// serve owns the read side of one connection until it closes.
func (s *Server) serve(c *Client) {
	var handlers sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		handlers.Wait()
		s.registry.Remove(c.id)
		c.conn.Close()
		s.logger.Info("socket client disconnected", "client_id", c.id)
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(s.now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(s.now().Add(pongWait))
	})
	go s.keepAlive(c, done)

	s.emit(c, EventConnected, map[string]any{
		"message":   "Connected to Axiom Holo-Partner",
		"timestamp": s.timestamp(),
		"clientId":  c.id,
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("socket read error", "client_id", c.id, "err", err)
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			s.logger.Warn("invalid socket frame", "client_id", c.id, "err", err)
			s.emit(c, EventError, errorData("Invalid message format.", err))
			continue
		}

		if !c.acquire() {
			s.logger.Warn("socket client over in-flight limit", "client_id", c.id, "event", in.Event)
			s.emit(c, EventError, errorData("Please wait for your previous requests to finish.", fmt.Errorf("too many requests in flight")))
			continue
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			defer c.release()
			s.dispatch(c, in)
		}()
	}
}

func (s *Server) keepAlive(c *Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound event and recovers from handler panics.
func (s *Server) dispatch(c *Client, in inboundFrame) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("socket handler panic", "client_id", c.id, "event", in.Event, "panic", p)
			s.emit(c, EventError, errorData("Sorry, I encountered an unexpected error.", fmt.Errorf("%v", p)))
		}
	}()

	switch in.Event {
	case EventSpeech:
		s.handleSpeech(c, in.Data)
	case EventSDKRequest:
		s.handleSDK(c, in.Data)
	default:
		s.logger.Debug("ignoring socket event", "client_id", c.id, "event", in.Event)
	}
}

func (s *Server) handleSpeech(c *Client, raw json.RawMessage) {
	var data struct {
		Text string `json:"text"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			s.emit(c, EventError, errorData("Sorry, I could not read your message.", err))
			return
		}
	}
	env := &domain.Envelope{
		Source:      domain.SourceSocket,
		UserID:      c.id,
		ChatID:      c.id,
		ContentType: domain.ContentText,
		Text:        strings.TrimSpace(data.Text),
		ReceivedAt:  s.now(),
	}
	if !env.HasContent() {
		s.emit(c, EventError, errorData("Please say something first.", fmt.Errorf("empty message")))
		return
	}
	if s.processor == nil {
		s.emit(c, EventError, errorData("Sorry, I encountered an error while processing your request.", fmt.Errorf("no processor configured")))
		return
	}

	s.metrics.Envelope(string(domain.SourceSocket))
	s.emit(c, EventProcessing, map[string]any{
		"status":  "processing",
		"message": "Analyzing your request...",
	})

	ctx, cancel := context.WithTimeout(context.Background(), processBudget)
	defer cancel()
	resp := s.processor.Process(ctx, domain.MessageFromEnvelope(*env))

	s.emit(c, EventResponse, map[string]any{
		"text":      resp.Text,
		"actions":   resp.Actions,
		"timestamp": s.timestamp(),
	})
}

func (s *Server) handleSDK(c *Client, raw json.RawMessage) {
	var req SDKRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			s.emit(c, EventError, errorData("Sorry, I encountered an error while generating the SDK.", err))
			return
		}
	}

	s.emit(c, EventBuildingSDK, map[string]any{
		"status":  "building",
		"message": "Generating your Agent SDK...",
	})

	archive, err := BuildSDK(req)
	if err != nil {
		s.logger.Error("sdk build failed", "client_id", c.id, "err", err)
		s.emit(c, EventError, errorData("Sorry, I encountered an error while generating the SDK.", err))
		return
	}

	s.logger.Info("sdk delivered", "client_id", c.id, "name", req.ArchiveName(), "bytes", len(archive))
	s.emit(c, EventSDKDelivered, map[string]any{
		"sdk":       base64.StdEncoding.EncodeToString(archive),
		"name":      req.ArchiveName(),
		"message":   "Your Agent SDK has been generated successfully!",
		"timestamp": s.timestamp(),
	})
}

func (s *Server) emit(c *Client, event string, data any) {
	if err := c.Emit(event, data); err != nil {
		s.logger.Debug("socket write failed", "client_id", c.id, "event", event, "err", err)
	}
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func errorData(message string, err error) map[string]any {
	return map[string]any{"message": message, "error": err.Error()}
}
