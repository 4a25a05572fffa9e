package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/repository"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/cache"
)

const defaultPresenceTTL = time.Hour

func presenceKey(username string) string { return "queue:" + username }

// QueueService 플레이어의 큐 진입/이탈
type QueueService struct {
	store       repository.Store
	cache       cache.Cache
	presenceTTL time.Duration
	modes       map[string]bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewQueueService modes가 비어 있으면 1v1만 허용
func NewQueueService(store repository.Store, c cache.Cache, modes []string, presenceTTL time.Duration, logger *zap.Logger) *QueueService {
	if c == nil {
		c = cache.Nop{}
	}
	if presenceTTL <= 0 {
		presenceTTL = defaultPresenceTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(modes) == 0 {
		modes = []string{models.Mode1v1}
	}
	allowed := make(map[string]bool, len(modes))
	for _, m := range modes {
		allowed[m] = true
	}
	return &QueueService{
		store:       store,
		cache:       c,
		presenceTTL: presenceTTL,
		modes:       allowed,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Join idle 플레이어를 큐에 넣고 searching으로 바꾼다. 레이팅/이름/지역은 진입 시점 값으로 고정
func (s *QueueService) Join(ctx context.Context, userID, mode string) (*models.QueueEntry, error) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = models.Mode1v1
	}
	if !s.modes[mode] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	var entry *models.QueueEntry
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		existing, err := tx.Queue().FindByPlayer(ctx, userID)
		if err != nil {
			return storageErr("find queue entry", err)
		}
		if existing != nil {
			return ErrAlreadyQueued
		}
		if user.Status != models.UserStatusIdle {
			return fmt.Errorf("%w (status: %s)", ErrPlayerBusy, user.Status)
		}

		entry = &models.QueueEntry{
			ID:          uuid.NewString(),
			PlayerID:    user.ID,
			DisplayName: user.Username,
			Rating:      user.Rating,
			Mode:        mode,
			Region:      user.Region,
			JoinedAt:    s.now(),
		}
		if err := tx.Queue().Insert(ctx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyQueued
			}
			return storageErr("enqueue player", err)
		}
		if err := tx.Users().UpdateStatus(ctx, user.ID, models.UserStatusSearching); err != nil {
			return userErr(user.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, passThrough("join queue", err)
	}

	if err := s.cache.Set(ctx, presenceKey(entry.DisplayName), entry, s.presenceTTL); err != nil {
		s.logger.Warn("Presence cache write failed", zap.String("userId", userID), zap.Error(err))
	}
	forgetUsers(ctx, s.cache, s.logger, userID)

	s.logger.Info("Player joined queue",
		zap.String("userId", userID),
		zap.String("mode", mode),
		zap.String("region", entry.Region),
		zap.Int("rating", entry.Rating))

	return entry, nil
}

// Leave 큐 항목을 지우고 idle로 되돌린다
func (s *QueueService) Leave(ctx context.Context, userID string) error {
	var username string
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		username = user.Username

		deleted, err := tx.Queue().DeleteByPlayer(ctx, userID)
		if err != nil {
			return storageErr("dequeue player", err)
		}
		if !deleted {
			return ErrNotQueued
		}
		if err := tx.Users().UpdateStatus(ctx, userID, models.UserStatusIdle); err != nil {
			return userErr(userID, err)
		}
		return nil
	})
	if err != nil {
		return passThrough("leave queue", err)
	}

	if err := s.cache.Del(ctx, presenceKey(username)); err != nil {
		s.logger.Warn("Presence cache delete failed", zap.String("userId", userID), zap.Error(err))
	}
	forgetUsers(ctx, s.cache, s.logger, userID)

	s.logger.Info("Player left queue", zap.String("userId", userID))
	return nil
}

// Stats (region, mode) 별 대기 인원과 평균 레이팅
func (s *QueueService) Stats(ctx context.Context) ([]models.QueueStats, error) {
	stats, err := s.store.Queue().Stats(ctx)
	if err != nil {
		return nil, storageErr("queue stats", err)
	}
	if stats == nil {
		stats = []models.QueueStats{}
	}
	return stats, nil
}
