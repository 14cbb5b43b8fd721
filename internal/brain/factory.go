package brain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"agentgate/internal/cache"
	"agentgate/internal/config"
	"agentgate/internal/domain"
	"agentgate/internal/knowledge"
	"agentgate/internal/ledger"
	"agentgate/internal/metrics"
	"agentgate/internal/upstream"
)

// Built is an orchestrator together with the backends it owns.
type Built struct {
	*Orchestrator
	closers []io.Closer
}

// Close releases backend connections in reverse order of creation.
func (b *Built) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig wires the pipeline backends selected in cfg.Brain.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.Collector, logger *slog.Logger) (*Built, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Built{}
	fail := func(err error) (*Built, error) {
		b.Close()
		return nil, err
	}

	bc := cfg.Brain
	worker := upstream.NewClient(upstream.ClientConfig{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Model:   cfg.Upstream.Model,
		Timeout: seconds(bc.InferenceTimeoutSeconds),
		Logger:  logger,
	})

	oc := Config{
		Inference:        upstream.NewInference(cfg.Upstream, seconds(bc.InferenceTimeoutSeconds), logger),
		Keywords:         bc.Keywords,
		MemoryTimeout:    seconds(bc.MemoryTimeoutSeconds),
		CacheTimeout:     seconds(bc.CacheTimeoutSeconds),
		InferenceTimeout: seconds(bc.InferenceTimeoutSeconds),
		AugmentTimeout:   seconds(cfg.Ledger.TimeoutSeconds),
		PropagateCancel:  bc.PropagateCancel,
		Metrics:          m,
		Logger:           logger,
	}

	switch bc.MemoryBackend {
	case "", "none":
	case "http":
		oc.Memory = worker
	case "knowledge":
		store, err := knowledge.NewSQLiteStore(cfg.Knowledge.DBPath, logger)
		if err != nil {
			return fail(fmt.Errorf("open knowledge store: %w", err))
		}
		b.closers = append(b.closers, store)
		oc.Memory = knowledge.NewEngine(knowledge.EngineConfig{
			Store:     store,
			ChunkSize: cfg.Knowledge.ChunkSize,
			Overlap:   cfg.Knowledge.ChunkOverlap,
			Logger:    logger,
		})
	default:
		return fail(fmt.Errorf("unknown memory backend %q", bc.MemoryBackend))
	}

	switch bc.CacheBackend {
	case "", "none":
	case "http":
		oc.Cache = worker
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Address:  cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.Prefix,
			TTL:      seconds(cfg.Cache.TTLSeconds),
		})
		if err != nil {
			return fail(fmt.Errorf("connect redis cache: %w", err))
		}
		b.closers = append(b.closers, rc)
		oc.Cache = rc
	default:
		return fail(fmt.Errorf("unknown cache backend %q", bc.CacheBackend))
	}

	src, err := augmentSource(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if c, ok := src.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
	oc.Augment = src

	b.Orchestrator = New(oc)
	logger.Info("brain pipeline ready",
		"memory", bc.MemoryBackend, "cache", bc.CacheBackend,
		"inference", oc.Inference.Name(), "augment", bc.AugmentBackend)
	return b, nil
}

func augmentSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.AugmentationSource, error) {
	lc := cfg.Ledger
	switch cfg.Brain.AugmentBackend {
	case "", "none":
		return nil, nil
	case "static":
		return ledger.NewStaticSource(lc.StaticData), nil
	case "http":
		return ledger.NewHTTPSource(ledger.HTTPConfig{URL: lc.HTTPURL, Timeout: seconds(lc.TimeoutSeconds), Logger: logger}), nil
	case "evm":
		dctx, cancel := context.WithTimeout(ctx, seconds(lc.TimeoutSeconds))
		defer cancel()
		src, err := ledger.NewEVMSource(dctx, ledger.EVMConfig{RPCURL: lc.RPCURL, WatchAddress: lc.WatchAddress, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown augment backend %q", cfg.Brain.AugmentBackend)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
