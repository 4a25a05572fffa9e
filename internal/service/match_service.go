package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/repository"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/cache"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MatchService 매치 상태 머신 (pending → active → finished, pending|active → cancelled)
// 모든 전이는 하나의 트랜잭션 안에서 상태를 다시 확인하고 조건부로 갱신한다
type MatchService struct {
	store  repository.Store
	elo    *ELOService
	cache  cache.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewMatchService(store repository.Store, elo *ELOService, logger *zap.Logger) *MatchService {
	if elo == nil {
		elo = NewELOService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchService{
		store:  store,
		elo:    elo,
		cache:  cache.Nop{},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetCache 플레이어 상태가 바뀔 때 무효화할 캐시 지정
func (s *MatchService) SetCache(c cache.Cache) {
	if c != nil {
		s.cache = c
	}
}

// Create 큐에서 뽑힌 두 플레이어로 pending 매치 생성
// 스캔 때 읽은 큐 항목 중 하나라도 이미 없거나 다른 항목으로 바뀌었으면 ErrConflict, 전체 롤백
func (s *MatchService) Create(ctx context.Context, pair [2]models.QueueEntry, mode string) (*models.Match, error) {
	if err := validatePair(pair, mode); err != nil {
		return nil, err
	}

	now := s.now()
	match := &models.Match{
		ID:        uuid.NewString(),
		Mode:      mode,
		Region:    pair[0].Region,
		Status:    models.MatchStatusPending,
		CreatedAt: now,
	}
	for i, entry := range pair {
		match.Players[i] = models.MatchPlayer{
			PlayerID:         entry.PlayerID,
			DisplayName:      entry.DisplayName,
			RatingAtCreation: entry.Rating,
		}
	}

	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		for _, entry := range pair {
			deleted, err := tx.Queue().DeleteEntry(ctx, entry.PlayerID, entry.ID)
			if err != nil {
				return storageErr("dequeue player", err)
			}
			if !deleted {
				return fmt.Errorf("%w: queue entry %s of player %s is gone", ErrConflict, entry.ID, entry.PlayerID)
			}
		}

		if err := tx.Matches().Insert(ctx, match); err != nil {
			return storageErr("insert match", err)
		}

		for _, entry := range pair {
			if err := tx.Users().UpdateStatus(ctx, entry.PlayerID, models.UserStatusInMatch); err != nil {
				return userErr(entry.PlayerID, err)
			}
			if err := tx.Users().AppendMatchHistory(ctx, entry.PlayerID, match.ID); err != nil {
				return userErr(entry.PlayerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, passThrough("create match", err)
	}
	forgetUsers(ctx, s.cache, s.logger, pair[0].PlayerID, pair[1].PlayerID)
	if err := s.cache.Del(ctx, presenceKey(pair[0].DisplayName), presenceKey(pair[1].DisplayName)); err != nil {
		s.logger.Warn("Presence cache delete failed", zap.String("matchId", match.ID), zap.Error(err))
	}

	s.logger.Info("Match created",
		zap.String("matchId", match.ID),
		zap.String("mode", mode),
		zap.String("region", match.Region),
		zap.String("player1", pair[0].PlayerID),
		zap.String("player2", pair[1].PlayerID),
		zap.Int("ratingDiff", abs(pair[0].Rating-pair[1].Rating)))

	return match, nil
}

func validatePair(pair [2]models.QueueEntry, mode string) error {
	if pair[0].PlayerID == "" || pair[1].PlayerID == "" {
		return fmt.Errorf("%w: pair requires two players", ErrValidation)
	}
	if pair[0].PlayerID == pair[1].PlayerID {
		return fmt.Errorf("%w: cannot match player %s against itself", ErrValidation, pair[0].PlayerID)
	}
	if pair[0].Mode != mode || pair[1].Mode != mode {
		return fmt.Errorf("%w: pair is not queued for mode %s", ErrValidation, mode)
	}
	if pair[0].Region != pair[1].Region {
		return fmt.Errorf("%w: players are in different regions", ErrValidation)
	}
	return nil
}

// Start pending → active
func (s *MatchService) Start(ctx context.Context, id string) (*models.Match, error) {
	var started *models.Match
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		match, err := lockMatch(ctx, tx, id)
		if err != nil {
			return err
		}
		if match.Status != models.MatchStatusPending {
			return invalidTransition(match, models.MatchStatusActive)
		}

		applied, err := tx.Matches().TransitionStatus(ctx, id,
			[]models.MatchStatus{models.MatchStatusPending}, models.MatchStatusActive, s.now())
		if err != nil {
			return storageErr("start match", err)
		}
		if !applied {
			return invalidTransition(match, models.MatchStatusActive)
		}

		started, err = reloadMatch(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, passThrough("start match", err)
	}

	s.logger.Info("Match started", zap.String("matchId", id))
	return started, nil
}

// Finish active → finished. 승자/패자 현재 레이팅으로 ELO 정산 후 두 플레이어를 idle로 돌린다
func (s *MatchService) Finish(ctx context.Context, id, winnerID, loserID string) (*models.Match, error) {
	if winnerID == "" || loserID == "" {
		return nil, fmt.Errorf("%w: winner and loser are required", ErrValidation)
	}
	if winnerID == loserID {
		return nil, fmt.Errorf("%w: winner and loser must differ", ErrValidation)
	}

	var (
		finished *models.Match
		result   RatingResult
	)
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		match, err := lockMatch(ctx, tx, id)
		if err != nil {
			return err
		}
		if !match.HasPlayer(winnerID) || !match.HasPlayer(loserID) {
			return fmt.Errorf("%w: winner and loser must be the participants of match %s", ErrValidation, id)
		}
		if match.Status != models.MatchStatusActive {
			return invalidTransition(match, models.MatchStatusFinished)
		}

		winner, err := loadUser(ctx, tx, winnerID)
		if err != nil {
			return err
		}
		loser, err := loadUser(ctx, tx, loserID)
		if err != nil {
			return err
		}

		result = s.elo.CalculateELO(winner.Rating, loser.Rating)
		applied, err := tx.Matches().Finish(ctx, id, winnerID, models.MatchResult{
			WinnerRatingAfter: result.WinnerRatingAfter,
			LoserRatingAfter:  result.LoserRatingAfter,
			RatingDelta:       result.RatingDelta,
		}, s.now())
		if err != nil {
			return storageErr("finish match", err)
		}
		if !applied {
			return invalidTransition(match, models.MatchStatusFinished)
		}

		if err := tx.Users().UpdateRating(ctx, winnerID, result.WinnerRatingAfter); err != nil {
			return userErr(winnerID, err)
		}
		if err := tx.Users().UpdateRating(ctx, loserID, result.LoserRatingAfter); err != nil {
			return userErr(loserID, err)
		}
		if err := releasePlayers(ctx, tx, match); err != nil {
			return err
		}

		finished, err = reloadMatch(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, passThrough("finish match", err)
	}
	forgetUsers(ctx, s.cache, s.logger, winnerID, loserID)

	s.logger.Info("Match finished",
		zap.String("matchId", id),
		zap.String("winner", winnerID),
		zap.String("loser", loserID),
		zap.Int("winnerRating", result.WinnerRatingAfter),
		zap.Int("loserRating", result.LoserRatingAfter),
		zap.Int("ratingDelta", result.RatingDelta))

	return finished, nil
}

// Cancel pending|active → cancelled. 레이팅은 건드리지 않는다
func (s *MatchService) Cancel(ctx context.Context, id string) (*models.Match, error) {
	var cancelled *models.Match
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		match, err := lockMatch(ctx, tx, id)
		if err != nil {
			return err
		}
		if match.Status.IsTerminal() {
			return invalidTransition(match, models.MatchStatusCancelled)
		}

		applied, err := tx.Matches().TransitionStatus(ctx, id,
			[]models.MatchStatus{models.MatchStatusPending, models.MatchStatusActive},
			models.MatchStatusCancelled, s.now())
		if err != nil {
			return storageErr("cancel match", err)
		}
		if !applied {
			return invalidTransition(match, models.MatchStatusCancelled)
		}
		if err := releasePlayers(ctx, tx, match); err != nil {
			return err
		}

		cancelled, err = reloadMatch(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, passThrough("cancel match", err)
	}
	ids := cancelled.PlayerIDs()
	forgetUsers(ctx, s.cache, s.logger, ids[0], ids[1])

	s.logger.Info("Match cancelled", zap.String("matchId", id))
	return cancelled, nil
}

// GetByID 매치 조회
func (s *MatchService) GetByID(ctx context.Context, id string) (*models.Match, error) {
	match, err := s.store.Matches().FindByID(ctx, id)
	if err != nil {
		return nil, storageErr("get match", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// List 최신순 매치 목록 (페이지네이션)
func (s *MatchService) List(ctx context.Context, page, pageSize int) (*models.MatchPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	total, err := s.store.Matches().Count(ctx)
	if err != nil {
		return nil, storageErr("count matches", err)
	}
	matches, err := s.store.Matches().List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, storageErr("list matches", err)
	}
	if matches == nil {
		matches = []*models.Match{}
	}

	return &models.MatchPage{
		Matches: matches,
		Pagination: models.Pagination{
			Total: total,
			Page:  page,
			Pages: (total + pageSize - 1) / pageSize,
		},
	}, nil
}

// ListActive 진행 중(active) 매치
func (s *MatchService) ListActive(ctx context.Context) ([]*models.Match, error) {
	matches, err := s.store.Matches().ListByStatus(ctx, models.MatchStatusActive)
	if err != nil {
		return nil, storageErr("list active matches", err)
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return matches, nil
}

// PlayerHistory 플레이어의 종료된 매치, 최신순
func (s *MatchService) PlayerHistory(ctx context.Context, userID string, limit int) ([]*models.Match, error) {
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	matches, err := s.store.Matches().ListFinishedByPlayer(ctx, userID, limit)
	if err != nil {
		return nil, storageErr("list player history", err)
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return matches, nil
}

func lockMatch(ctx context.Context, tx repository.Repositories, id string) (*models.Match, error) {
	match, err := tx.Matches().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, storageErr("load match", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return match, nil
}

func reloadMatch(ctx context.Context, tx repository.Repositories, id string) (*models.Match, error) {
	match, err := tx.Matches().FindByID(ctx, id)
	if err != nil {
		return nil, storageErr("reload match", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return match, nil
}

func loadUser(ctx context.Context, tx repository.Repositories, id string) (*models.User, error) {
	user, err := tx.Users().Get(ctx, id)
	if err != nil {
		return nil, storageErr("load user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return user, nil
}

// releasePlayers 매치 참가자 두 명을 idle로
func releasePlayers(ctx context.Context, tx repository.Repositories, match *models.Match) error {
	for _, playerID := range match.PlayerIDs() {
		if err := tx.Users().UpdateStatus(ctx, playerID, models.UserStatusIdle); err != nil {
			return userErr(playerID, err)
		}
	}
	return nil
}

func invalidTransition(match *models.Match, to models.MatchStatus) error {
	return fmt.Errorf("%w: match %s is %s, cannot move to %s", ErrInvalidState, match.ID, match.Status, to)
}

// userErr 갱신 대상 플레이어가 없으면 ErrUserNotFound
func userErr(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return storageErr("update user", err)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
