package dispatch

import (
	"context"
	"log/slog"

	"agentgate/internal/domain"
)

// ResponseHandler receives the answer produced for a locally dispatched envelope.
type ResponseHandler func(env domain.Envelope, resp domain.BrainResponse)

// Local runs the in-process orchestrator for single-binary deployments.
type Local struct {
	processor  domain.Processor
	onResponse ResponseHandler
	logger     *slog.Logger
}

func NewLocal(p domain.Processor, onResponse ResponseHandler, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{processor: p, onResponse: onResponse, logger: logger}
	if l.onResponse == nil {
		l.onResponse = l.logResponse
	}
	return l
}

func (l *Local) Name() string { return "local" }

// Forward never fails: the orchestrator always produces an answer.
func (l *Local) Forward(ctx context.Context, env domain.Envelope) error {
	resp := l.processor.Process(ctx, domain.MessageFromEnvelope(env))
	l.onResponse(env, resp)
	return nil
}

func (l *Local) Close() error { return nil }

func (l *Local) logResponse(env domain.Envelope, resp domain.BrainResponse) {
	l.logger.Info("agent response",
		"agent_id", env.AgentID,
		"source", env.Source,
		"chat_id", env.ChatID,
		"actions", resp.Actions,
		"text_len", len(resp.Text),
	)
}
