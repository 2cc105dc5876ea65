package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/config"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemory()
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(ctx, "pools")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "pools", []byte(`[{"poolId":"a"}]`), time.Minute))
	got, ok := c.Get(ctx, "pools")
	require.True(t, ok)
	assert.JSONEq(t, `[{"poolId":"a"}]`, string(got))
}

func TestNewSelectsBackend(t *testing.T) {
	c, err := New(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, c)

	r, err := New(config.CacheConfig{Backend: "redis", RedisAddr: "localhost:0"})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, r)
	_ = r.Close()

	_, err = New(config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}
