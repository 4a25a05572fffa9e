package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jerry-Khobby/matchmaking-system/internal/service"
)

// Scanner 수동 매칭 실행
type Scanner interface {
	Trigger(ctx context.Context) (*service.ScanReport, error)
}

type MatchmakingHandler struct {
	scanner Scanner
}

func NewMatchmakingHandler(scanner Scanner) *MatchmakingHandler {
	return &MatchmakingHandler{scanner: scanner}
}

// Trigger 즉시 스캔 실행. 진행 중인 스캔이 있으면 끝난 뒤 실행된다
func (h *MatchmakingHandler) Trigger(c *gin.Context) {
	report, err := h.scanner.Trigger(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Matchmaking completed",
		"report":  report,
	})
}
