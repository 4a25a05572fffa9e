package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/service"
)

type QueueHandler struct {
	queueService *service.QueueService
}

func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

// JoinQueue 매칭 대기열 진입
func (h *QueueHandler) JoinQueue(c *gin.Context) {
	var req models.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	entry, err := h.queueService.Join(c.Request.Context(), req.UserID, req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Joined matchmaking queue",
		"entry":   entry,
	})
}

// LeaveQueue 대기열 이탈
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	var req models.LeaveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.queueService.Leave(c.Request.Context(), req.UserID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left matchmaking queue"})
}

// QueueStats region/mode별 대기 현황
func (h *QueueHandler) QueueStats(c *gin.Context) {
	stats, err := h.queueService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
