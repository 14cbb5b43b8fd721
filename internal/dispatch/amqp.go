package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"agentgate/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the part of *amqp.Channel the dispatcher uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes ForwardPayload JSON to a durable queue.
type AMQP struct {
	conn   *amqp.Connection
	ch     publisher
	queue  string
	logger *slog.Logger
}

type AMQPConfig struct {
	URL    string
	Queue  string
	Logger *slog.Logger
}

// NewAMQP dials the broker and declares the queue.
func NewAMQP(cfg AMQPConfig) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agent.messages"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare queue %s: %w", queue, err)
	}
	a := newAMQPWithPublisher(ch, queue, cfg.Logger)
	a.conn = conn
	return a, nil
}

func newAMQPWithPublisher(p publisher, queue string, logger *slog.Logger) *AMQP {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQP{ch: p, queue: queue, logger: logger}
}

func (a *AMQP) Name() string { return "amqp" }

func (a *AMQP) Forward(ctx context.Context, env domain.Envelope) error {
	body, err := json.Marshal(env.Payload())
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrDispatch, err)
	}
	err = a.ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.MessageID,
		Timestamp:    env.ReceivedAt,
		Headers:      amqp.Table{"agentId": env.AgentID, "source": string(env.Source)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: amqp queue %s: %v", domain.ErrDispatch, a.queue, err)
	}
	return nil
}

func (a *AMQP) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
