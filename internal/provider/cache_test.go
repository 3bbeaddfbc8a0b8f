package provider

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisTokenCache(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	cache := NewRedisTokenCache(client, "test-user")
	require.NoError(t, cache.Clear(ctx))

	tok, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	want := &oauth2.Token{AccessToken: "abc", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Truncate(time.Second)}
	require.NoError(t, cache.Store(ctx, want))

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))

	ttl := client.TTL(ctx, "thermal-service:provider-token:test-user").Val()
	assert.True(t, ttl > 0 && ttl <= time.Hour)

	require.NoError(t, cache.Clear(ctx))
	got, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryTokenCache(t *testing.T) {
	ctx := context.Background()
	cache := &MemoryTokenCache{}
	require.NoError(t, cache.Store(ctx, &oauth2.Token{AccessToken: "x"}))
	tok, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", tok.AccessToken)
	require.NoError(t, cache.Clear(ctx))
	tok, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}
