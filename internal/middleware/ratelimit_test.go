package middleware

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimitStrict_AllowsUpToLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:1", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:1", 10, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "11th request should be rejected")
}

func TestCheckRateLimitStrict_WindowReset(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:2", 10, time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(61 * time.Second)

	allowed, err := CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:2", 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "counter should reset after the window expires")
}

func TestCheckRateLimitStrict_IndependentIdentities(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:3", 10, time.Minute)
		require.NoError(t, err)
	}
	allowed, err := CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:3", 10, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	// Another user is unaffected.
	allowed, err = CheckRateLimitStrict(ctx, rdb, "chat:messages", "user:4", 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimitStrict_NilClient(t *testing.T) {
	_, err := CheckRateLimitStrict(context.Background(), nil, "chat:messages", "user:5", 10, time.Minute)
	assert.Error(t, err)
}

func TestCheckRateLimit_DevBypass(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "chat:messages", fmt.Sprintf("user:%d", 6), 10, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
	}
}
