package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"agentgate/internal/config"
	"agentgate/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// Handler processes one envelope taken off a queue.
type Handler func(ctx context.Context, env domain.Envelope) error

// Consumer is the agent side of the kafka and amqp backends.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

// NewConsumer returns the consumer matching the dispatch backend.
func NewConsumer(cfg config.DispatchConfig, logger *slog.Logger) (Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, logger), nil
	case "amqp":
		return NewAMQPConsumer(cfg.AMQP, logger)
	default:
		return nil, fmt.Errorf("backend %q has no queue to consume", cfg.Backend)
	}
}

// decodeEnvelope reads a ForwardPayload body.
func decodeEnvelope(body []byte) (domain.Envelope, error) {
	var p domain.ForwardPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	env := p.Envelope()
	if env.AgentID == "" || !env.HasContent() {
		return domain.Envelope{}, fmt.Errorf("%w: envelope without agent or content", domain.ErrMalformedPayload)
	}
	return env, nil
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads envelopes from the dispatch topic as a consumer group.
type KafkaConsumer struct {
	reader messageReader
	logger *slog.Logger
}

func NewKafkaConsumer(cfg config.KafkaConfig, logger *slog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaConsumer{reader: reader, logger: logger}
}

// Run blocks until ctx is cancelled. Offsets are committed as messages are read.
func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka read error", "err", err)
			continue
		}
		env, err := decodeEnvelope(msg.Value)
		if err != nil {
			c.logger.Warn("kafka message skipped", "partition", msg.Partition, "offset", msg.Offset, "err", err)
			continue
		}
		if err := h(ctx, env); err != nil {
			c.logger.Error("kafka handler failed", "agent_id", env.AgentID, "err", err)
		}
	}
}

func (c *KafkaConsumer) Close() error { return c.reader.Close() }

// AMQPConsumer reads envelopes from the durable dispatch queue with manual acks.
type AMQPConsumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger
}

func NewAMQPConsumer(cfg config.AMQPConfig, logger *slog.Logger) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(8, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare queue %s: %w", cfg.Queue, err)
	}
	return &AMQPConsumer{conn: conn, ch: ch, queue: cfg.Queue, logger: logger}, nil
}

func (c *AMQPConsumer) Run(ctx context.Context, h Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", c.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d, h)
		}
	}
}

// handle acks everything except undecodable bodies, which are dropped.
func (c *AMQPConsumer) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	env, err := decodeEnvelope(d.Body)
	if err != nil {
		c.logger.Warn("amqp message rejected", "message_id", d.MessageId, "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := h(ctx, env); err != nil {
		c.logger.Error("amqp handler failed", "agent_id", env.AgentID, "err", err)
	}
	_ = d.Ack(false)
}

func (c *AMQPConsumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
