package models

import "time"

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusFinished  MatchStatus = "finished"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// IsTerminal finished/cancelled 매치는 더 이상 전이하지 않는다
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusFinished || s == MatchStatusCancelled
}

// MatchPlayer 매치 생성 시점의 플레이어 스냅샷
type MatchPlayer struct {
	PlayerID         string `json:"playerId" db:"player_id"`
	DisplayName      string `json:"displayName" db:"display_name"`
	RatingAtCreation int    `json:"ratingAtCreation" db:"rating"`
	Team             string `json:"team,omitempty" db:"team"`
}

// MatchResult 종료된 매치의 레이팅 정산 결과
type MatchResult struct {
	WinnerRatingAfter int `json:"winnerRatingAfter"`
	LoserRatingAfter  int `json:"loserRatingAfter"`
	RatingDelta       int `json:"ratingDelta"`
}

type Match struct {
	ID        string         `json:"id" db:"id"`
	Mode      string         `json:"mode" db:"mode"`
	Region    string         `json:"region" db:"region"`
	Status    MatchStatus    `json:"status" db:"status"`
	Players   [2]MatchPlayer `json:"players"`
	WinnerID  *string        `json:"winnerId,omitempty" db:"winner_id"`
	Result    *MatchResult   `json:"result,omitempty"`
	StartedAt *time.Time     `json:"startedAt,omitempty" db:"started_at"`
	EndedAt   *time.Time     `json:"endedAt,omitempty" db:"ended_at"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

// HasPlayer 주어진 ID가 이 매치의 참가자인지 확인
func (m *Match) HasPlayer(playerID string) bool {
	return m.Players[0].PlayerID == playerID || m.Players[1].PlayerID == playerID
}

// PlayerIDs 참가자 ID (생성 순서 유지)
func (m *Match) PlayerIDs() [2]string {
	return [2]string{m.Players[0].PlayerID, m.Players[1].PlayerID}
}

type FinishMatchRequest struct {
	WinnerID string `json:"winnerId" binding:"required"`
	LoserID  string `json:"loserId" binding:"required"`
}

// MatchPage 페이지네이션된 매치 목록
type MatchPage struct {
	Matches    []*Match   `json:"matches"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}
