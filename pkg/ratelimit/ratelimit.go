package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Info 한 번의 요청에 대한 판정 결과 (응답 헤더용)
type Info struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Limiter key별 요청 허용 여부를 판단한다
type Limiter interface {
	Take(ctx context.Context, key string) (Info, error)
}

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // Tokens added per second
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if n requests are allowed and consumes n tokens if so
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.lastUsed = tb.now()
	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// Remaining 현재 남은 토큰 수
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// refill 경과한 초 단위만큼 토큰을 채운다. 1초 미만의 잔여 시간은 다음 호출로 넘어간다
func (tb *TokenBucket) refill() {
	now := tb.now()
	seconds := int64(now.Sub(tb.lastRefill) / time.Second)
	if seconds <= 0 {
		return
	}

	tb.tokens += seconds * tb.refillRate
	if tb.tokens >= tb.capacity {
		tb.tokens = tb.capacity
		tb.lastRefill = now
		return
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(seconds) * time.Second)
}

func (tb *TokenBucket) idleSince(now time.Time, idle time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens == tb.capacity && now.Sub(tb.lastUsed) > idle
}

// RateLimiter 프로세스 내 key별 token bucket 모음
type RateLimiter struct {
	mu              sync.Mutex
	buckets         map[string]*TokenBucket
	capacity        int64
	refillRate      int64
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(capacity, refillRate int64) *RateLimiter {
	return &RateLimiter{
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		refillRate:      refillRate,
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
		now:             time.Now,
	}
}

// Allow checks if a request from the given key is allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getBucket(key).Allow()
}

// Take Limiter 구현
func (rl *RateLimiter) Take(ctx context.Context, key string) (Info, error) {
	bucket := rl.getBucket(key)
	allowed := bucket.Allow()
	return Info{
		Allowed:   allowed,
		Limit:     int(rl.capacity),
		Remaining: int(bucket.Remaining()),
		ResetTime: rl.now().Add(time.Second),
	}, nil
}

// getBucket gets or creates a token bucket for the given key
// 오래 쓰이지 않은 bucket은 이 때 함께 정리한다
func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > rl.cleanupInterval {
		for k, b := range rl.buckets {
			if b.idleSince(now, rl.cleanupInterval) {
				delete(rl.buckets, k)
			}
		}
		rl.lastCleanup = now
	}

	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = newTokenBucket(rl.capacity, rl.refillRate, rl.now)
		rl.buckets[key] = bucket
	}
	return bucket
}

// Reset resets the rate limit for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// ActiveBuckets 현재 추적 중인 key 수
func (rl *RateLimiter) ActiveBuckets() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
