package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jerry-Khobby/matchmaking-system/internal/api"
	"github.com/Jerry-Khobby/matchmaking-system/internal/api/handlers"
	"github.com/Jerry-Khobby/matchmaking-system/internal/config"
	"github.com/Jerry-Khobby/matchmaking-system/internal/repository"
	"github.com/Jerry-Khobby/matchmaking-system/internal/service"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/cache"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/database"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/distributed"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/logger"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/ratelimit"
)

// pingFunc 함수를 handlers.Pinger로 사용
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting matchmaking system",
		"port", cfg.Port,
		"env", cfg.Env,
		"store", cfg.StoreDriver,
	)

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer store.Close()

	healthChecks := map[string]handlers.Pinger{"store": store}

	var (
		userCache      cache.Cache = cache.Nop{}
		triggerLimiter ratelimit.Limiter
		scanGuard      service.ScanGuard
		redisClient    *redis.Client
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		logger.Info("Redis connection established")

		userCache = cache.NewRedisCache(redisClient, "mm:")
		scanGuard = distributed.NewScanLock(redisClient, distributed.DefaultScanLockKey, cfg.MatchmakingLockTTL, logger.Named("scan-lock"))
		triggerLimiter = ratelimit.NewRedisRateLimiter(redisClient, ratelimit.RedisRateLimiterConfig{
			KeyPrefix: "ratelimit:",
			Limit:     int(cfg.TriggerRateCapacity),
			Window:    time.Duration(max(cfg.TriggerRateCapacity/max(cfg.TriggerRateRefill, 1), 1)) * time.Second,
		})
		healthChecks["redis"] = pingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// 서비스 구성
	users := service.NewUserService(store, userCache, 0, logger.Named("users"))
	queue := service.NewQueueService(store, userCache, cfg.MatchmakingModes, cfg.PresenceTTL, logger.Named("queue"))
	matches := service.NewMatchService(store, service.NewELOService(), logger.Named("matches"))
	matches.SetCache(userCache)

	scanner := service.NewMatchmakingService(store, matches, service.ScannerConfig{
		Interval: cfg.MatchmakingInterval,
		Modes:    cfg.MatchmakingModes,
		Budget:   cfg.MatchmakingScanBudget,
		Rules:    service.DefaultPairingRules(),
	}, logger.Named("matchmaking"))
	if scanGuard != nil {
		scanner.SetGuard(scanGuard)
	}
	scanner.Start()

	router := api.SetupRouter(cfg, api.Services{
		Users:          users,
		Queue:          queue,
		Matches:        matches,
		Scanner:        scanner,
		TriggerLimiter: triggerLimiter,
		HealthChecks:   healthChecks,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 진행 중인 스캔이 끝날 때까지 기다린 뒤 HTTP 종료
	scanner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited", "skippedTicks", scanner.SkippedTicks())
}

// openStore STORE_DRIVER에 따라 저장소 생성
func openStore(cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established")
	return repository.NewPostgresStore(db), nil
}
