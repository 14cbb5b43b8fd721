package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"agentgate/internal/config"
	"agentgate/internal/domain"
)

// New builds the dispatcher selected by cfg.Backend. The processor is only
// used by the local backend.
func New(cfg config.DispatchConfig, processor domain.Processor, logger *slog.Logger) (domain.Dispatcher, error) {
	switch cfg.Backend {
	case "http":
		return NewHTTP(HTTPConfig{
			BaseURL:    cfg.HTTP.BaseURL,
			Timeout:    time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.HTTP.MaxRetries,
			Logger:     logger,
		}), nil
	case "kafka":
		return NewKafka(KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, Logger: logger}), nil
	case "amqp":
		return NewAMQP(AMQPConfig{URL: cfg.AMQP.URL, Queue: cfg.AMQP.Queue, Logger: logger})
	case "local", "":
		if processor == nil {
			return nil, fmt.Errorf("local dispatch needs a processor")
		}
		return NewLocal(processor, nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown dispatch backend: %s", cfg.Backend)
	}
}
