package models

import "time"

const Mode1v1 = "1v1"

// QueueEntry 매칭 큐 대기 항목. rating/displayName은 큐 진입 시점 스냅샷
type QueueEntry struct {
	ID          string    `db:"id" json:"id"`
	PlayerID    string    `db:"player_id" json:"playerId"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Rating      int       `db:"rating" json:"rating"`
	Mode        string    `db:"mode" json:"mode"`
	Region      string    `db:"region" json:"region"`
	JoinedAt    time.Time `db:"joined_at" json:"joinedAt"`
}

// WaitTime now 기준 대기 시간
func (e QueueEntry) WaitTime(now time.Time) time.Duration {
	return now.Sub(e.JoinedAt)
}

// QueueStats (region, mode) 별 큐 집계
type QueueStats struct {
	Region         string    `json:"region"`
	Mode           string    `json:"mode"`
	Count          int       `json:"count"`
	AvgRating      float64   `json:"avgRating"`
	OldestJoinTime time.Time `json:"oldestJoinTime"`
}

type JoinQueueRequest struct {
	UserID string `json:"userId" binding:"required"`
	Mode   string `json:"mode"`
}

type LeaveQueueRequest struct {
	UserID string `json:"userId" binding:"required"`
}
