package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Jerry-Khobby/matchmaking-system/internal/api/handlers"
	"github.com/Jerry-Khobby/matchmaking-system/internal/api/middleware"
	"github.com/Jerry-Khobby/matchmaking-system/internal/config"
	"github.com/Jerry-Khobby/matchmaking-system/internal/service"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/ratelimit"
)

// Services 라우터가 사용하는 서비스 묶음 (main에서 생성해 주입)
type Services struct {
	Users          *service.UserService
	Queue          *service.QueueService
	Matches        *service.MatchService
	Scanner        handlers.Scanner
	TriggerLimiter ratelimit.Limiter
	HealthChecks   map[string]handlers.Pinger
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	if svc.TriggerLimiter == nil {
		svc.TriggerLimiter = ratelimit.NewRateLimiter(cfg.TriggerRateCapacity, cfg.TriggerRateRefill)
	}

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(svc.HealthChecks)
	userHandler := handlers.NewUserHandler(svc.Users)
	queueHandler := handlers.NewQueueHandler(svc.Queue)
	matchmakingHandler := handlers.NewMatchmakingHandler(svc.Scanner)
	matchHandler := handlers.NewMatchHandler(svc.Matches)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			users.POST("", userHandler.Register)
			users.GET("/:id", userHandler.GetUser)
		}

		queue := v1.Group("/queue")
		{
			queue.POST("/join", queueHandler.JoinQueue)
			queue.POST("/leave", queueHandler.LeaveQueue)
		}

		matchmaking := v1.Group("/matchmaking")
		{
			matchmaking.POST("/trigger", middleware.TriggerRateLimit(svc.TriggerLimiter), matchmakingHandler.Trigger)
			matchmaking.GET("/queue-stats", queueHandler.QueueStats)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("", matchHandler.ListMatches)
			matches.GET("/active", matchHandler.ListActiveMatches)
			matches.GET("/history/:userId", matchHandler.PlayerHistory)
			matches.GET("/:id", matchHandler.GetMatch)
			matches.POST("/:id/start", matchHandler.StartMatch)
			matches.POST("/:id/finish", matchHandler.FinishMatch)
			matches.POST("/:id/cancel", matchHandler.CancelMatch)
		}
	}

	return router
}
