package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentgate/internal/domain"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the dispatcher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per envelope, keyed by agent id so every
// agent's messages stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

type KafkaConfig struct {
	Brokers string // comma separated
	Topic   string
	Logger  *slog.Logger
}

func NewKafka(cfg KafkaConfig) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaWithWriter(w, cfg.Topic, cfg.Logger)
}

func newKafkaWithWriter(w messageWriter, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{writer: w, topic: topic, logger: logger}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Forward(ctx context.Context, env domain.Envelope) error {
	value, err := json.Marshal(env.Payload())
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrDispatch, err)
	}
	msg := kafka.Message{
		Key:   []byte(env.AgentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(env.Source)},
			{Key: "type", Value: []byte(env.ContentType)},
		},
		Time: env.ReceivedAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka topic %s: %v", domain.ErrDispatch, k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
