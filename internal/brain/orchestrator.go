// Package brain turns a request into a response through a fixed sequence of
// best-effort stages: memory, cache, inference, augmentation and assembly.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentgate/internal/domain"
	"agentgate/internal/metrics"
)

// Canned texts substituted when a stage cannot produce an answer.
const (
	ApologyText     = "Sorry, I encountered an error while processing your request. Please try again later."
	TroubleText     = "I'm having trouble processing your request right now. Please try again later."
	EmptyAnswerText = "I'm not sure how to respond to that."
)

// Default stage deadlines.
const (
	DefaultMemoryTimeout    = 5 * time.Second
	DefaultCacheTimeout     = 5 * time.Second
	DefaultInferenceTimeout = 10 * time.Second
	DefaultAugmentTimeout   = 8 * time.Second
)

type Config struct {
	Memory    domain.MemorySearcher     // optional
	Cache     domain.InferenceCache     // optional; written back when it is also a domain.CacheWriter
	Inference domain.InferenceProvider  // required for non-cached answers
	Augment   domain.AugmentationSource // optional
	Keywords  []string

	MemoryTimeout    time.Duration
	CacheTimeout     time.Duration
	InferenceTimeout time.Duration
	AugmentTimeout   time.Duration

	// PropagateCancel binds stage calls to the caller's context. By default
	// stages run to completion or to their own deadline.
	PropagateCancel bool

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Orchestrator is safe for concurrent use; it keeps no per-request state.
type Orchestrator struct {
	memory    domain.MemorySearcher
	cache     domain.InferenceCache
	writer    domain.CacheWriter
	inference domain.InferenceProvider
	augment   domain.AugmentationSource
	trigger   Trigger

	memoryTimeout    time.Duration
	cacheTimeout     time.Duration
	inferenceTimeout time.Duration
	augmentTimeout   time.Duration
	propagateCancel  bool

	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	o := &Orchestrator{
		memory:           cfg.Memory,
		cache:            cfg.Cache,
		inference:        cfg.Inference,
		augment:          cfg.Augment,
		trigger:          NewTrigger(cfg.Keywords),
		memoryTimeout:    orDefault(cfg.MemoryTimeout, DefaultMemoryTimeout),
		cacheTimeout:     orDefault(cfg.CacheTimeout, DefaultCacheTimeout),
		inferenceTimeout: orDefault(cfg.InferenceTimeout, DefaultInferenceTimeout),
		augmentTimeout:   orDefault(cfg.AugmentTimeout, DefaultAugmentTimeout),
		propagateCancel:  cfg.PropagateCancel,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		now:              time.Now,
	}
	if w, ok := cfg.Cache.(domain.CacheWriter); ok {
		o.writer = w
	}
	return o
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Process runs the pipeline. It never panics and always returns a response
// with non-empty text.
func (o *Orchestrator) Process(ctx context.Context, req domain.BrainRequest) (resp domain.BrainResponse) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("brain pipeline panic", "user_id", req.UserID, "panic", p)
			resp = domain.BrainResponse{Text: ApologyText, Actions: []string{domain.ActionError}}
		}
		o.metrics.BrainDuration(o.now().Sub(start))
	}()

	o.logger.Info("brain processing message", "user_id", req.UserID, "length", len(req.Message))

	var pc domain.PipelineContext
	pc.MemoryContext = o.recall(ctx, req.Message)

	text, hit := o.lookup(ctx, req.Message)
	pc.CacheHit = hit
	if !hit {
		text = o.infer(ctx, req, pc.MemoryContext)
	}

	pc.Augmentation = o.augmentation(ctx, req.Message)

	resp = Assemble(text, pc.MemoryContext, pc.Augmentation)
	o.logger.Debug("brain response assembled",
		"user_id", req.UserID, "cache_hit", pc.CacheHit,
		"used_memory", pc.MemoryContext != nil, "augmented", pc.Augmentation.Relevant)
	return resp
}

// recall returns nil when memory is absent, failing, slow or empty.
func (o *Orchestrator) recall(ctx context.Context, message string) *string {
	if o.memory == nil {
		return nil
	}
	sctx, cancel := o.stageContext(ctx, o.memoryTimeout)
	defer cancel()

	found, err := runStage(sctx, func(c context.Context) (string, error) {
		return o.memory.Search(c, message)
	})
	switch {
	case err != nil:
		o.metrics.Stage("memory", outcome(err))
		o.logger.Warn("memory lookup failed", "err", err)
		return nil
	case strings.TrimSpace(found) == "":
		o.metrics.Stage("memory", "empty")
		return nil
	}
	o.metrics.Stage("memory", "hit")
	return &found
}

// lookup consults the inference cache with the raw message.
func (o *Orchestrator) lookup(ctx context.Context, message string) (string, bool) {
	if o.cache == nil {
		return "", false
	}
	sctx, cancel := o.stageContext(ctx, o.cacheTimeout)
	defer cancel()

	res, err := runStage(sctx, func(c context.Context) (domain.CacheResult, error) {
		return o.cache.Lookup(c, message)
	})
	if err != nil {
		o.metrics.Stage("cache", outcome(err))
		o.logger.Warn("cache lookup failed", "err", err)
		return "", false
	}
	if !res.Cached || res.Response == "" {
		o.metrics.Stage("cache", "miss")
		return "", false
	}
	o.metrics.Stage("cache", "hit")
	return res.Response, true
}

func (o *Orchestrator) infer(ctx context.Context, req domain.BrainRequest, memory *string) string {
	if o.inference == nil {
		o.metrics.Stage("inference", "error")
		o.logger.Error("no inference provider configured")
		return TroubleText
	}

	prompt := req.Message
	if memory != nil {
		prompt = *memory + "\n\nUser: " + req.Message
	}

	sctx, cancel := o.stageContext(ctx, o.inferenceTimeout)
	defer cancel()

	answer, err := runStage(sctx, func(c context.Context) (string, error) {
		return o.inference.Infer(c, domain.InferenceRequest{Prompt: prompt, Image: req.Image})
	})
	if err != nil {
		o.metrics.Stage("inference", outcome(err))
		o.logger.Error("inference failed", "provider", o.inference.Name(), "err", err)
		return TroubleText
	}
	if strings.TrimSpace(answer) == "" {
		o.metrics.Stage("inference", "empty")
		return EmptyAnswerText
	}
	o.metrics.Stage("inference", "ok")

	o.writeBack(ctx, req.Message, answer)
	return answer
}

// writeBack keys on the raw message so the next lookup for it hits.
func (o *Orchestrator) writeBack(ctx context.Context, message, answer string) {
	if o.writer == nil {
		return
	}
	sctx, cancel := o.stageContext(ctx, o.cacheTimeout)
	defer cancel()

	_, err := runStage(sctx, func(c context.Context) (struct{}, error) {
		return struct{}{}, o.writer.Store(c, message, answer)
	})
	if err != nil {
		o.metrics.Stage("cache_write", outcome(err))
		o.logger.Warn("cache write failed", "err", err)
		return
	}
	o.metrics.Stage("cache_write", "ok")
}

func (o *Orchestrator) augmentation(ctx context.Context, message string) domain.Augmentation {
	keyword, ok := o.trigger.Match(message)
	if !ok || o.augment == nil {
		o.metrics.Stage("augment", "skipped")
		return domain.Augmentation{}
	}

	sctx, cancel := o.stageContext(ctx, o.augmentTimeout)
	defer cancel()

	data, err := runStage(sctx, func(c context.Context) (string, error) {
		return o.augment.Fetch(c, message)
	})
	if err != nil {
		o.metrics.Stage("augment", outcome(err))
		o.logger.Warn("domain augmentation failed", "source", o.augment.Name(), "keyword", keyword, "err", err)
		return domain.Augmentation{Relevant: true, Err: err.Error()}
	}
	o.metrics.Stage("augment", "ok")
	return domain.Augmentation{Relevant: true, Data: data}
}

// stageContext detaches from caller cancellation unless configured otherwise.
func (o *Orchestrator) stageContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if !o.propagateCancel {
		parent = context.WithoutCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

type stageResult[T any] struct {
	val T
	err error
}

// runStage bounds fn by ctx even when fn ignores its context. The goroutine
// of an abandoned call finishes on its own; its result is discarded.
func runStage[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	done := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- stageResult[T]{err: &stagePanic{value: p}}
			}
		}()
		v, err := fn(ctx)
		done <- stageResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type stagePanic struct {
	value any
}

func (p *stagePanic) Error() string { return fmt.Sprintf("stage panic: %v", p.value) }

func outcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
