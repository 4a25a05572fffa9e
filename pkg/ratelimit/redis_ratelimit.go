package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 토큰 수와 마지막 갱신 시각을 읽어 경과 시간만큼 채우고, 1개를 소비한다
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens_key = key .. ":tokens"
	local timestamp_key = key .. ":timestamp"

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last_update = tonumber(redis.call('GET', timestamp_key))

	if tokens == nil or last_update == nil then
		tokens = limit
		last_update = now
	end

	local elapsed = now - last_update
	local refill_rate = limit / window
	local new_tokens = math.min(limit, tokens + (elapsed * refill_rate))

	local allowed = 0
	if new_tokens >= 1 then
		new_tokens = new_tokens - 1
		allowed = 1
	end

	redis.call('SET', tokens_key, new_tokens, 'EX', window * 2)
	redis.call('SET', timestamp_key, now, 'EX', window * 2)

	return {allowed, math.floor(new_tokens), now + window}
`)

// RedisRateLimiter Redis 기반 분산 Rate Limiter. 여러 서버 인스턴스가 같은 한도를 공유한다
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

type RedisRateLimiterConfig struct {
	KeyPrefix string        // 키 접두사 (예: "ratelimit:")
	Limit     int           // 윈도우 내 최대 요청 수
	Window    time.Duration // 윈도우 크기
}

func NewRedisRateLimiter(client redis.UniversalClient, config RedisRateLimiterConfig) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window < time.Second {
		config.Window = time.Minute
	}

	return &RedisRateLimiter{
		client:    client,
		keyPrefix: config.KeyPrefix,
		limit:     config.Limit,
		window:    config.Window,
		now:       time.Now,
	}
}

// Take Limiter 구현
func (r *RedisRateLimiter) Take(ctx context.Context, key string) (Info, error) {
	now := r.now().Unix()
	window := int64(r.window / time.Second)

	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.keyPrefix + key}, r.limit, window, now).Result()
	if err != nil {
		return Info{}, fmt.Errorf("redis script execution failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return Info{}, fmt.Errorf("invalid script result: %v", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetTime, _ := values[2].(int64)

	return Info{
		Allowed:   allowed == 1,
		Limit:     r.limit,
		Remaining: int(remaining),
		ResetTime: time.Unix(resetTime, 0),
	}, nil
}

// Reset key의 한도 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	k := r.keyPrefix + key
	return r.client.Del(ctx, k+":tokens", k+":timestamp").Err()
}
