// Package cache stores the last good payload of an upstream call so a failing
// upstream can be answered with stale data instead of fixtures.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"

	"aether-vault/internal/config"
)

// Cache is a byte-oriented key/value cache with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New selects a backend from configuration.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory()
	case "redis":
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	case "none", "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Memory is an in-process cache backed by ristretto.
type Memory struct {
	c *ristretto.Cache
}

// NewMemory builds a small ristretto cache sized for a handful of payloads.
func NewMemory() (*Memory, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !m.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return errors.New("cache: set dropped")
	}
	// ristretto 写入是异步的，等待缓冲落地以便随后的 Get 可见
	m.c.Wait()
	return nil
}

func (m *Memory) Close() error {
	m.c.Close()
	return nil
}

// Redis shares cached payloads across replicas.
type Redis struct {
	client *redis.Client
}

// NewRedis connects lazily; the first command dials.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop never holds anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)               { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Close() error                                             { return nil }

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
	_ Cache = Noop{}
)
