package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one connected WebSocket peer. Writes are serialized because
// gorilla connections support only one concurrent writer.
type Client struct {
	id    string
	conn  *websocket.Conn
	mu    sync.Mutex
	slots chan struct{} // in-flight event handlers
}

func newClient(id string, conn *websocket.Conn, inflight int) *Client {
	return &Client{id: id, conn: conn, slots: make(chan struct{}, inflight)}
}

// acquire takes a handler slot without blocking.
func (c *Client) acquire() bool {
	select {
	case c.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Client) release() { <-c.slots }

func (c *Client) ID() string { return c.id }

// Emit writes one {event, data} frame.
func (c *Client) Emit(event string, data any) error {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Registry tracks live connections by id.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	closed   bool
	onChange func(n int)
}

// NewRegistry calls onChange, when non-nil, with the new size after every change.
func NewRegistry(onChange func(n int)) *Registry {
	return &Registry{clients: make(map[string]*Client), onChange: onChange}
}

// Add registers c and returns the new size. It reports false once the
// registry is closed; the caller then owns closing c.
func (r *Registry) Add(c *Client) (int, bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, false
	}
	r.clients[c.id] = c
	n := len(r.clients)
	r.mu.Unlock()
	r.notify(n)
	return n, true
}

func (r *Registry) Remove(id string) int {
	r.mu.Lock()
	delete(r.clients, id)
	n := len(r.clients)
	r.mu.Unlock()
	r.notify(n)
	return n
}

func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close disconnects every client, empties the registry and refuses later adds.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	r.notify(0)
}

func (r *Registry) notify(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
