package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 보조 캐시. 원본 데이터는 항상 저장소에 있고, 캐시 실패는 호출자가 무시할 수 있어야 한다
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get 키가 있으면 dest에 디코딩하고 true
	Get(ctx context.Context, key string, dest any) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisCache JSON 값을 저장하는 Redis 캐시
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache prefix는 모든 키 앞에 붙는다 (빈 문자열 허용)
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache value: %w", err)
	}
	return true, nil
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// Nop Redis가 설정되지 않았을 때 사용하는 캐시. 항상 miss
type Nop struct{}

func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) Del(context.Context, ...string) error                  { return nil }
