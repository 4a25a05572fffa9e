package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Storage
	StoreDriver string
	DatabaseURL string

	// Redis (비어 있으면 캐시/분산 락 없이 동작)
	RedisURL string

	// Matchmaking
	MatchmakingInterval   time.Duration
	MatchmakingModes      []string
	MatchmakingScanBudget time.Duration
	MatchmakingLockTTL    time.Duration
	PresenceTTL           time.Duration

	// Manual trigger rate limit
	TriggerRateCapacity int64
	TriggerRateRefill   int64
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		MatchmakingModes:    splitList(getEnv("MATCHMAKING_MODES", "1v1")),
		TriggerRateCapacity: 5,
		TriggerRateRefill:   1,
	}

	var err error
	if cfg.MatchmakingInterval, err = parseDuration("MATCHMAKING_INTERVAL", "10s"); err != nil {
		return nil, err
	}
	if cfg.MatchmakingScanBudget, err = parseDuration("MATCHMAKING_SCAN_BUDGET", "8s"); err != nil {
		return nil, err
	}
	if cfg.MatchmakingLockTTL, err = parseDuration("MATCHMAKING_LOCK_TTL", "30s"); err != nil {
		return nil, err
	}
	if cfg.PresenceTTL, err = parseDuration("PRESENCE_TTL", "1h"); err != nil {
		return nil, err
	}
	if cfg.TriggerRateCapacity, err = parseInt("TRIGGER_RATE_CAPACITY", cfg.TriggerRateCapacity); err != nil {
		return nil, err
	}
	if cfg.TriggerRateRefill, err = parseInt("TRIGGER_RATE_REFILL", cfg.TriggerRateRefill); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if len(c.MatchmakingModes) == 0 {
		return fmt.Errorf("MATCHMAKING_MODES must list at least one mode")
	}
	if c.MatchmakingInterval <= 0 {
		return fmt.Errorf("MATCHMAKING_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
