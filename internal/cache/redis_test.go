package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memKV is an in-memory stand-in for *redis.Client.
type memKV struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	m.data[key] = value.(string)
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memKV) Close() error { return nil }

func TestRedisCache_Key(t *testing.T) {
	c := newRedisCache(newMemKV(), "agentgate:ai:", time.Hour)
	k1 := c.Key("What is staking?")
	k2 := c.Key("What is staking?")
	k3 := c.Key("what is staking?")

	if k1 != k2 {
		t.Error("key must be deterministic")
	}
	if k1 == k3 {
		t.Error("different prompts must not share a key")
	}
	if !strings.HasPrefix(k1, "agentgate:ai:") || len(k1) != len("agentgate:ai:")+64 {
		t.Errorf("unexpected key shape %q", k1)
	}
}

func TestRedisCache_MissThenHit(t *testing.T) {
	store := newMemKV()
	c := newRedisCache(store, "p:", time.Minute)
	ctx := context.Background()

	res, err := c.Lookup(ctx, "hello")
	if err != nil || res.Cached {
		t.Fatalf("expected miss, got %+v, %v", res, err)
	}

	if err := c.Store(ctx, "hello", "hi!"); err != nil {
		t.Fatal(err)
	}
	if store.ttls[c.Key("hello")] != time.Minute {
		t.Errorf("expected TTL to be applied")
	}

	res, err = c.Lookup(ctx, "hello")
	if err != nil || !res.Cached || res.Response != "hi!" {
		t.Fatalf("expected hit, got %+v, %v", res, err)
	}
}

func TestRedisCache_SkipsEmptyAnswers(t *testing.T) {
	store := newMemKV()
	c := newRedisCache(store, "p:", time.Minute)
	if err := c.Store(context.Background(), "q", ""); err != nil {
		t.Fatal(err)
	}
	if len(store.data) != 0 {
		t.Error("empty answer should not be stored")
	}
}

func TestRedisCache_LookupError(t *testing.T) {
	store := newMemKV()
	store.getErr = errors.New("connection reset")
	c := newRedisCache(store, "p:", time.Minute)
	if _, err := c.Lookup(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
}
