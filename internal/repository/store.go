package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
)

var (
	// ErrNotFound 갱신 대상 레코드가 없음
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 유니크 제약 위반 (같은 플레이어의 두 번째 큐 항목, 중복 username 등)
	ErrDuplicate = errors.New("duplicate record")
)

// UserDirectory 플레이어 레코드 접근. 트랜잭션 안에서도 동일하게 동작해야 한다
type UserDirectory interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateRating(ctx context.Context, id string, rating int) error
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	AppendMatchHistory(ctx context.Context, id, matchID string) error
}

// QueueRepository 대기열 저장소. 플레이어당 최대 한 개의 항목만 허용
type QueueRepository interface {
	Insert(ctx context.Context, entry *models.QueueEntry) error
	// DeleteByPlayer 삭제된 항목이 있었는지 반환
	DeleteByPlayer(ctx context.Context, playerID string) (bool, error)
	// DeleteEntry entryID가 아직 그 플레이어의 항목일 때만 삭제
	DeleteEntry(ctx context.Context, playerID, entryID string) (bool, error)
	FindByPlayer(ctx context.Context, playerID string) (*models.QueueEntry, error)
	// GroupByRegion mode의 항목을 region별로 묶어 joinedAt 오름차순으로 반환
	GroupByRegion(ctx context.Context, mode string) (map[string][]models.QueueEntry, error)
	Stats(ctx context.Context) ([]models.QueueStats, error)
}

// MatchRepository 매치 저장소. 상태 변경은 모두 status 조건부 갱신
type MatchRepository interface {
	Insert(ctx context.Context, match *models.Match) error
	FindByID(ctx context.Context, id string) (*models.Match, error)
	// FindByIDForUpdate 트랜잭션 안에서 행을 잠그고 조회
	FindByIDForUpdate(ctx context.Context, id string) (*models.Match, error)
	// TransitionStatus 현재 상태가 from 중 하나일 때만 to로 바꾼다. 적용 여부 반환
	TransitionStatus(ctx context.Context, id string, from []models.MatchStatus, to models.MatchStatus, at time.Time) (bool, error)
	// Finish active 매치에만 승자와 결과를 기록한다. 적용 여부 반환
	Finish(ctx context.Context, id, winnerID string, result models.MatchResult, at time.Time) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.Match, error)
	Count(ctx context.Context) (int, error)
	ListByStatus(ctx context.Context, status models.MatchStatus) ([]*models.Match, error)
	ListFinishedByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Match, error)
}

// Repositories 하나의 일관된 뷰(트랜잭션 또는 오토커밋)에서 본 저장소들
type Repositories interface {
	Users() UserDirectory
	Queue() QueueRepository
	Matches() MatchRepository
}

// TransactionRunner fn이 nil을 반환하면 커밋, 에러나 panic이면 롤백
type TransactionRunner interface {
	RunAtomic(ctx context.Context, fn func(tx Repositories) error) error
}

// Store 서비스 계층이 의존하는 저장소 전체
type Store interface {
	Repositories
	TransactionRunner
	Ping(ctx context.Context) error
	Close() error
}
