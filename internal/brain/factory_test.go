package brain

import (
	"context"
	"path/filepath"
	"testing"

	"agentgate/internal/config"
	"agentgate/internal/knowledge"
	"agentgate/internal/ledger"
	"agentgate/internal/upstream"
)

func TestFromConfig_Defaults(t *testing.T) {
	cfg := config.Defaults()
	b, err := FromConfig(context.Background(), cfg, nil, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, ok := b.memory.(*upstream.Client); !ok {
		t.Errorf("expected upstream memory, got %T", b.memory)
	}
	if _, ok := b.cache.(*upstream.Client); !ok {
		t.Errorf("expected upstream cache, got %T", b.cache)
	}
	if b.writer != nil {
		t.Error("the upstream cache is not writable")
	}
	if b.augment != nil {
		t.Errorf("augmentation should be off by default, got %T", b.augment)
	}
}

func TestFromConfig_LocalBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Brain.MemoryBackend = "knowledge"
	cfg.Brain.CacheBackend = "none"
	cfg.Brain.AugmentBackend = "static"
	cfg.Ledger.StaticData = "42 units staked"
	cfg.Knowledge.DBPath = filepath.Join(t.TempDir(), "kb.db")

	b, err := FromConfig(context.Background(), cfg, nil, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, ok := b.memory.(*knowledge.Engine); !ok {
		t.Errorf("expected knowledge memory, got %T", b.memory)
	}
	if b.cache != nil {
		t.Errorf("expected no cache, got %T", b.cache)
	}
	if _, ok := b.augment.(*ledger.StaticSource); !ok {
		t.Errorf("expected static augmentation, got %T", b.augment)
	}
	if len(b.closers) != 1 {
		t.Errorf("expected the knowledge store to be owned, got %d closers", len(b.closers))
	}
}

func TestFromConfig_UnknownBackends(t *testing.T) {
	for _, mutate := range []func(*config.Config){
		func(c *config.Config) { c.Brain.MemoryBackend = "vector" },
		func(c *config.Config) { c.Brain.CacheBackend = "memcached" },
		func(c *config.Config) { c.Brain.AugmentBackend = "oracle" },
	} {
		cfg := config.Defaults()
		mutate(cfg)
		if _, err := FromConfig(context.Background(), cfg, nil, quietLogger()); err == nil {
			t.Errorf("expected error for %+v", cfg.Brain)
		}
	}
}
