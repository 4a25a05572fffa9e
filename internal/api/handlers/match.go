package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/service"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// ListMatches 모든 매치 목록 조회
func (h *MatchHandler) ListMatches(c *gin.Context) {
	// 쿼리 파라미터로 페이지네이션
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.matchService.List(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListActiveMatches 진행 중인 매치
func (h *MatchHandler) ListActiveMatches(c *gin.Context) {
	matches, err := h.matchService.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}

// GetMatch 특정 매치 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	match, err := h.matchService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// PlayerHistory 플레이어의 종료된 매치 기록
func (h *MatchHandler) PlayerHistory(c *gin.Context) {
	userID := c.Param("userId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	matches, err := h.matchService.PlayerHistory(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"matches": matches,
		"total":   len(matches),
	})
}

func (h *MatchHandler) StartMatch(c *gin.Context) {
	match, err := h.matchService.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// FinishMatch 승패 확정 및 레이팅 정산
func (h *MatchHandler) FinishMatch(c *gin.Context) {
	var req models.FinishMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	match, err := h.matchService.Finish(c.Request.Context(), c.Param("id"), req.WinnerID, req.LoserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

func (h *MatchHandler) CancelMatch(c *gin.Context) {
	match, err := h.matchService.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}
