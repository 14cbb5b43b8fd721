// Package cache stores inference answers in Redis so repeated prompts skip
// the inference worker.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"agentgate/internal/domain"

	"github.com/redis/go-redis/v9"
)

// kv is the part of *redis.Client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache implements domain.InferenceCache and domain.CacheWriter.
type RedisCache struct {
	client kv
	prefix string
	ttl    time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return newRedisCache(client, cfg.Prefix, cfg.TTL), nil
}

func newRedisCache(client kv, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Key derives the storage key for a prompt.
func (c *RedisCache) Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Lookup reports a hit only for a stored non-empty answer.
func (c *RedisCache) Lookup(ctx context.Context, prompt string) (domain.CacheResult, error) {
	val, err := c.client.Get(ctx, c.Key(prompt)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.CacheResult{}, nil
	}
	if err != nil {
		return domain.CacheResult{}, fmt.Errorf("redis get: %w", err)
	}
	return domain.CacheResult{Cached: val != "", Response: val}, nil
}

// Store writes the answer with the configured TTL. Empty answers are skipped.
func (c *RedisCache) Store(ctx context.Context, prompt, response string) error {
	if response == "" {
		return nil
	}
	if err := c.client.Set(ctx, c.Key(prompt), response, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
