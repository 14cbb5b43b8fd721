package brain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"agentgate/internal/config"
	"agentgate/internal/domain"
	"agentgate/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMemory struct {
	text  string
	err   error
	delay time.Duration
}

func (f *fakeMemory) Search(ctx context.Context, _ string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.text, f.err
}

type fakeCache struct {
	mu     sync.Mutex
	hits   map[string]string
	stored map[string]string
	err    error
}

func (f *fakeCache) Lookup(_ context.Context, prompt string) (domain.CacheResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.CacheResult{}, f.err
	}
	r, ok := f.hits[prompt]
	return domain.CacheResult{Cached: ok, Response: r}, nil
}

type writableCache struct {
	fakeCache
}

func (w *writableCache) Store(_ context.Context, prompt, response string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stored == nil {
		w.stored = map[string]string{}
	}
	w.stored[prompt] = response
	return nil
}

type fakeInference struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	images  []string
}

func (f *fakeInference) Name() string { return "fake" }

func (f *fakeInference) Infer(_ context.Context, req domain.InferenceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	f.images = append(f.images, req.Image)
	return f.answer, f.err
}

func (f *fakeInference) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeAugment struct {
	data  string
	err   error
	calls int
}

func (f *fakeAugment) Name() string { return "fake" }

func (f *fakeAugment) Fetch(context.Context, string) (string, error) {
	f.calls++
	return f.data, f.err
}

type panicInference struct{}

func (panicInference) Name() string { panic("name exploded") }
func (panicInference) Infer(context.Context, domain.InferenceRequest) (string, error) {
	return "", errors.New("down")
}

func newTestOrchestrator(cfg Config) *Orchestrator {
	if cfg.Keywords == nil {
		cfg.Keywords = config.DefaultKeywords
	}
	cfg.Logger = quietLogger()
	return New(cfg)
}

func TestProcess_EndToEnd(t *testing.T) {
	o := newTestOrchestrator(Config{
		Memory:    &fakeMemory{},
		Cache:     &fakeCache{},
		Inference: &fakeInference{answer: "Staking locks tokens."},
		Augment:   &fakeAugment{data: "42 units staked"},
	})

	got := o.Process(context.Background(), domain.BrainRequest{Message: "What is staking?", UserID: "u1"})
	want := domain.BrainResponse{Text: "Staking locks tokens.\n\n[Domain Info]: 42 units staked", Actions: []string{}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestProcess_CacheHitSkipsInference(t *testing.T) {
	inf := &fakeInference{answer: "fresh"}
	o := newTestOrchestrator(Config{
		Cache:     &fakeCache{hits: map[string]string{"hello": "cached hello"}},
		Inference: inf,
	})

	got := o.Process(context.Background(), domain.BrainRequest{Message: "hello"})
	if got.Text != "cached hello" {
		t.Errorf("expected cached text, got %q", got.Text)
	}
	if inf.calls() != 0 {
		t.Errorf("inference must not run on a cache hit, ran %d times", inf.calls())
	}
}

func TestProcess_EmptyCachedTextIsMiss(t *testing.T) {
	inf := &fakeInference{answer: "fresh"}
	o := newTestOrchestrator(Config{
		Cache:     &fakeCache{hits: map[string]string{"hello": ""}},
		Inference: inf,
	})
	if got := o.Process(context.Background(), domain.BrainRequest{Message: "hello"}); got.Text != "fresh" {
		t.Errorf("expected inference answer, got %q", got.Text)
	}
}

func TestProcess_WriteBackKeysOnMessage(t *testing.T) {
	c := &writableCache{}
	inf := &fakeInference{answer: "Paris."}
	o := newTestOrchestrator(Config{
		Memory:    &fakeMemory{text: "Geography notes"},
		Cache:     c,
		Inference: inf,
	})

	o.Process(context.Background(), domain.BrainRequest{Message: "Capital of France?"})
	if c.stored["Capital of France?"] != "Paris." {
		t.Fatalf("expected write-back under the raw message, got %v", c.stored)
	}

	// The stored answer now serves the same message without inference.
	c.hits = c.stored
	o.Process(context.Background(), domain.BrainRequest{Message: "Capital of France?"})
	if inf.calls() != 1 {
		t.Errorf("expected second call served from cache, inference ran %d times", inf.calls())
	}
}

func TestProcess_MemoryShapesPromptAndActions(t *testing.T) {
	inf := &fakeInference{answer: "ok"}
	o := newTestOrchestrator(Config{
		Memory:    &fakeMemory{text: "Alice likes tea"},
		Inference: inf,
	})

	got := o.Process(context.Background(), domain.BrainRequest{Message: "What does Alice like?", Image: "aGk="})
	if !got.HasAction(domain.ActionUsedMemory) {
		t.Errorf("expected used_memory action, got %v", got.Actions)
	}
	if inf.prompts[0] != "Alice likes tea\n\nUser: What does Alice like?" {
		t.Errorf("unexpected prompt %q", inf.prompts[0])
	}
	if inf.images[0] != "aGk=" {
		t.Errorf("image not forwarded: %q", inf.images[0])
	}
}

func TestProcess_MemoryTimeoutDegrades(t *testing.T) {
	inf := &fakeInference{answer: "ok"}
	o := newTestOrchestrator(Config{
		Memory:        &fakeMemory{text: "late context", delay: 200 * time.Millisecond},
		MemoryTimeout: 20 * time.Millisecond,
		Inference:     inf,
	})

	got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"})
	if got.HasAction(domain.ActionUsedMemory) {
		t.Errorf("timed out memory must not count as used, got %v", got.Actions)
	}
	if inf.prompts[0] != "hi" {
		t.Errorf("prompt should be the bare message, got %q", inf.prompts[0])
	}
}

func TestProcess_MemoryErrorAndBlank(t *testing.T) {
	for _, mem := range []*fakeMemory{{err: errors.New("down")}, {text: "  "}} {
		o := newTestOrchestrator(Config{Memory: mem, Inference: &fakeInference{answer: "ok"}})
		if got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"}); len(got.Actions) != 0 {
			t.Errorf("expected no actions, got %v", got.Actions)
		}
	}
}

func TestProcess_InferenceFallbacks(t *testing.T) {
	o := newTestOrchestrator(Config{Inference: &fakeInference{err: errors.New("502")}})
	if got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"}); got.Text != TroubleText {
		t.Errorf("expected trouble text, got %q", got.Text)
	}

	o = newTestOrchestrator(Config{Inference: &fakeInference{answer: ""}})
	if got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"}); got.Text != EmptyAnswerText {
		t.Errorf("expected empty-answer text, got %q", got.Text)
	}

	o = newTestOrchestrator(Config{})
	if got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"}); got.Text != TroubleText {
		t.Errorf("expected trouble text without provider, got %q", got.Text)
	}
}

func TestProcess_FailedInferenceStillAugments(t *testing.T) {
	aug := &fakeAugment{data: "slot 9"}
	o := newTestOrchestrator(Config{Inference: &fakeInference{err: errors.New("down")}, Augment: aug})
	got := o.Process(context.Background(), domain.BrainRequest{Message: "my wallet"})
	if got.Text != TroubleText+DomainInfoPrefix+"slot 9" {
		t.Errorf("unexpected text %q", got.Text)
	}
}

func TestProcess_AugmentationTrigger(t *testing.T) {
	aug := &fakeAugment{data: "D"}
	o := newTestOrchestrator(Config{Inference: &fakeInference{answer: "A"}, Augment: aug})

	if got := o.Process(context.Background(), domain.BrainRequest{Message: "Check my WALLET"}); got.Text != "A\n\n[Domain Info]: D" {
		t.Errorf("expected domain suffix, got %q", got.Text)
	}
	if got := o.Process(context.Background(), domain.BrainRequest{Message: "tell me a joke"}); got.Text != "A" {
		t.Errorf("unexpected suffix on unrelated message: %q", got.Text)
	}
	if aug.calls != 1 {
		t.Errorf("augmentation should only run when triggered, ran %d times", aug.calls)
	}
}

func TestProcess_AugmentationErrorOmitsSuffix(t *testing.T) {
	o := newTestOrchestrator(Config{
		Inference: &fakeInference{answer: "A"},
		Augment:   &fakeAugment{err: errors.New("rpc down")},
	})
	got := o.Process(context.Background(), domain.BrainRequest{Message: "nft floor?"})
	if got.Text != "A" {
		t.Errorf("expected bare answer, got %q", got.Text)
	}
	if aug := o.augmentation(context.Background(), "nft floor?"); !aug.Relevant || aug.Err == "" {
		t.Errorf("expected relevant augmentation carrying error, got %+v", aug)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	o := newTestOrchestrator(Config{
		Memory:    &fakeMemory{text: "ctx"},
		Inference: &fakeInference{answer: "answer"},
		Augment:   &fakeAugment{data: "balance 1 ETH"},
	})
	req := domain.BrainRequest{Message: "balance?", UserID: "u"}
	a := o.Process(context.Background(), req)
	b := o.Process(context.Background(), req)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("responses differ: %+v vs %+v", a, b)
	}
}

func TestProcess_PanicBecomesApology(t *testing.T) {
	o := newTestOrchestrator(Config{Inference: panicInference{}})
	got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"})
	want := domain.BrainResponse{Text: ApologyText, Actions: []string{domain.ActionError}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

type panickyMemory struct{}

func (panickyMemory) Search(context.Context, string) (string, error) { panic("index corrupted") }

func TestProcess_StagePanicDegrades(t *testing.T) {
	o := newTestOrchestrator(Config{Memory: panickyMemory{}, Inference: &fakeInference{answer: "ok"}})
	got := o.Process(context.Background(), domain.BrainRequest{Message: "hi"})
	if got.Text != "ok" || len(got.Actions) != 0 {
		t.Fatalf("expected degraded memory stage, got %+v", got)
	}
}

func TestProcess_DetachedFromCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(Config{Inference: &fakeInference{answer: "still answered"}})
	if got := o.Process(ctx, domain.BrainRequest{Message: "hi"}); got.Text != "still answered" {
		t.Errorf("detached stages should ignore caller cancel, got %q", got.Text)
	}

	o = newTestOrchestrator(Config{Inference: &fakeInference{answer: "x"}, PropagateCancel: true})
	if got := o.Process(ctx, domain.BrainRequest{Message: "hi"}); got.Text != TroubleText {
		t.Errorf("propagated cancel should fail inference, got %q", got.Text)
	}
}

func TestProcess_RecordsStageMetrics(t *testing.T) {
	m := metrics.New()
	o := newTestOrchestrator(Config{
		Cache:     &fakeCache{hits: map[string]string{"q": "a"}},
		Inference: &fakeInference{answer: "x"},
		Metrics:   m,
	})
	o.Process(context.Background(), domain.BrainRequest{Message: "q"})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	for _, want := range []string{
		`agentgate_brain_stage_total{outcome="hit",stage="cache"} 1`,
		`agentgate_brain_duration_seconds_count 1`,
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}
