package domain

import (
	"context"
	"net/http"
)

// Adapter verifies and normalizes one platform's inbound webhook payloads.
type Adapter interface {
	Source() Source
	// Verify checks request authenticity. Failures wrap ErrUnauthorized.
	Verify(r *http.Request, body []byte) error
	// Parse returns nil, nil for events that carry no user content.
	Parse(agentID string, body []byte) (*Envelope, error)
}

// Dispatcher forwards envelopes to the per-agent handler (Agent Dispatch).
type Dispatcher interface {
	Name() string
	Forward(ctx context.Context, env Envelope) error
	Close() error
}
