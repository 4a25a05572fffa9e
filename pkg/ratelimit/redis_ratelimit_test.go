package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRateLimiter(t *testing.T, limit int, window time.Duration) (*RedisRateLimiter, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := newFakeClock()
	limiter := NewRedisRateLimiter(client, RedisRateLimiterConfig{
		KeyPrefix: "test:ratelimit:",
		Limit:     limit,
		Window:    window,
	})
	limiter.now = clock.Now
	return limiter, clock, mr
}

func TestRedisRateLimiter_TokenBucket(t *testing.T) {
	limiter, _, _ := setupRedisRateLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		info, err := limiter.Take(ctx, "user:123")
		require.NoError(t, err)
		assert.True(t, info.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5-i-1, info.Remaining)
	}

	info, err := limiter.Take(ctx, "user:123")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 5, info.Limit)
}

func TestRedisRateLimiter_TokenRefill(t *testing.T) {
	limiter, clock, _ := setupRedisRateLimiter(t, 2, 2*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		info, err := limiter.Take(ctx, "refill")
		require.NoError(t, err)
		require.True(t, info.Allowed)
	}
	info, err := limiter.Take(ctx, "refill")
	require.NoError(t, err)
	assert.False(t, info.Allowed)

	// 초당 1개 리필
	clock.Advance(time.Second)
	info, err = limiter.Take(ctx, "refill")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestRedisRateLimiter_KeysAreIndependentAndResettable(t *testing.T) {
	limiter, _, mr := setupRedisRateLimiter(t, 1, time.Minute)
	ctx := context.Background()

	info, _ := limiter.Take(ctx, "a")
	assert.True(t, info.Allowed)
	info, _ = limiter.Take(ctx, "a")
	assert.False(t, info.Allowed)

	info, _ = limiter.Take(ctx, "b")
	assert.True(t, info.Allowed)

	require.NoError(t, limiter.Reset(ctx, "a"))
	assert.False(t, mr.Exists("test:ratelimit:a:tokens"))
	info, _ = limiter.Take(ctx, "a")
	assert.True(t, info.Allowed)
}

func TestRedisRateLimiter_ConcurrentRequests(t *testing.T) {
	limiter, _, _ := setupRedisRateLimiter(t, 10, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := limiter.Take(context.Background(), "concurrent")
			if err == nil && info.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestRedisRateLimiter_InvalidRedis(t *testing.T) {
	limiter, _, mr := setupRedisRateLimiter(t, 1, time.Minute)
	mr.Close()

	_, err := limiter.Take(context.Background(), "down")
	assert.Error(t, err)
}
