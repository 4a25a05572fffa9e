package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(5, 1, clock.Now) // 5 capacity, 1 refill per second

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if bucket.Allow() {
		t.Error("6th request should be denied")
	}

	clock.Advance(1100 * time.Millisecond)

	if !bucket.Allow() {
		t.Error("Request after refill should be allowed")
	}
	if bucket.Allow() {
		t.Error("Only one token should have been refilled")
	}
}

func TestTokenBucket_AllowN(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(10, 2, clock.Now)

	if !bucket.AllowN(10) {
		t.Error("AllowN(10) should be allowed")
	}
	if bucket.AllowN(1) {
		t.Error("AllowN(1) should be denied after consuming all tokens")
	}

	clock.Advance(time.Second)

	if !bucket.AllowN(2) {
		t.Error("AllowN(2) should be allowed after refill")
	}
}

func TestTokenBucket_PartialSecondsCarryOver(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(3, 1, clock.Now)
	bucket.AllowN(3)

	// 0.6초씩 두 번이면 1초가 넘으므로 토큰 하나
	clock.Advance(600 * time.Millisecond)
	if bucket.Allow() {
		t.Error("No token before a full second has passed")
	}
	clock.Advance(600 * time.Millisecond)
	if !bucket.Allow() {
		t.Error("Elapsed fractions should accumulate into a token")
	}
}

func TestTokenBucket_CapacityCap(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(3, 10, clock.Now)
	bucket.AllowN(3)

	clock.Advance(time.Hour)
	if got := bucket.Remaining(); got != 3 {
		t.Errorf("Remaining() = %d, want capacity 3", got)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("user1") {
			t.Errorf("Request %d for user1 should be allowed", i+1)
		}
	}
	if limiter.Allow("user1") {
		t.Error("4th request for user1 should be denied")
	}

	// Different key should have separate bucket
	if !limiter.Allow("user2") {
		t.Error("First request for user2 should be allowed")
	}
}

func TestRateLimiter_Take(t *testing.T) {
	limiter := NewRateLimiter(2, 1)
	ctx := context.Background()

	info, err := limiter.Take(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Allowed || info.Limit != 2 || info.Remaining != 1 {
		t.Errorf("first Take = %+v", info)
	}

	limiter.Take(ctx, "ip:1.2.3.4")
	info, _ = limiter.Take(ctx, "ip:1.2.3.4")
	if info.Allowed || info.Remaining != 0 {
		t.Errorf("third Take should be denied, got %+v", info)
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := NewRateLimiter(2, 1)

	limiter.Allow("test")
	limiter.Allow("test")
	if limiter.Allow("test") {
		t.Error("Request should be denied")
	}

	limiter.Reset("test")
	if !limiter.Allow("test") {
		t.Error("Request should be allowed after reset")
	}
}

func TestRateLimiter_CleanupIdleBuckets(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(2, 1)
	limiter.now = clock.Now
	limiter.lastCleanup = clock.Now()

	limiter.Allow("old")
	clock.Advance(30 * time.Minute)
	limiter.Allow("new")

	if got := limiter.ActiveBuckets(); got != 1 {
		t.Errorf("ActiveBuckets() = %d, want 1 after idle cleanup", got)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(100, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if limiter.Allow("concurrent") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if limiter.ActiveBuckets() != 1 {
		t.Errorf("Expected 1 active bucket, got %d", limiter.ActiveBuckets())
	}
	if allowed < 100 || allowed > 110 {
		t.Errorf("allowed = %d, want about the bucket capacity", allowed)
	}
}

func BenchmarkTokenBucket_Allow(b *testing.B) {
	bucket := NewTokenBucket(1000000, 100000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bucket.Allow()
	}
}
