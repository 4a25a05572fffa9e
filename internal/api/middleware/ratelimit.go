package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Jerry-Khobby/matchmaking-system/pkg/logger"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	KeyFunc func(*gin.Context) string // Function to extract rate limit key
}

// IPKeyFunc uses only IP address (for public endpoints)
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware creates a rate limiting middleware
// Limiter 오류(예: Redis 장애) 시에는 요청을 허용한다 (fail-open)
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		info, err := config.Limiter.Take(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limiter unavailable", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

		if !info.Allowed {
			retryAfter := int(time.Until(info.ResetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TriggerRateLimit 수동 매칭 트리거용 (IP 기준)
func TriggerRateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Limiter: limiter,
		KeyFunc: func(c *gin.Context) string { return "trigger:" + IPKeyFunc(c) },
	})
}
