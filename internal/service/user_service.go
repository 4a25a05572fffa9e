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

const defaultUserCacheTTL = 5 * time.Minute

func userCacheKey(id string) string { return "user:" + id }

type UserService struct {
	store    repository.Store
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewUserService(store repository.Store, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *UserService {
	if c == nil {
		c = cache.Nop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultUserCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		store:    store,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Register 새 플레이어 등록
func (s *UserService) Register(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	region := strings.TrimSpace(req.Region)
	if username == "" || region == "" {
		return nil, fmt.Errorf("%w: username and region are required", ErrValidation)
	}

	rating := models.DefaultRating
	if req.Rating != nil {
		if *req.Rating < 0 {
			return nil, fmt.Errorf("%w: rating must not be negative", ErrValidation)
		}
		rating = *req.Rating
	}

	// 사용자명 중복 확인
	existing, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		return nil, storageErr("check username", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Region:       region,
		Rating:       rating,
		Status:       models.UserStatusIdle,
		MatchHistory: []string{},
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, storageErr("create user", err)
	}

	s.logger.Info("User registered",
		zap.String("userId", user.ID),
		zap.String("username", user.Username),
		zap.String("region", user.Region))

	return user, nil
}

// Get 캐시를 먼저 보고, 없으면 저장소에서 읽어 캐시에 채운다
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var cached models.User
	found, err := s.cache.Get(ctx, userCacheKey(id), &cached)
	if err != nil {
		s.logger.Warn("User cache read failed", zap.String("userId", id), zap.Error(err))
	}
	if found {
		return &cached, nil
	}

	user, err := s.store.Users().Get(ctx, id)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := s.cache.Set(ctx, userCacheKey(id), user, s.cacheTTL); err != nil {
		s.logger.Warn("User cache write failed", zap.String("userId", id), zap.Error(err))
	}
	return user, nil
}

// forgetUsers 상태가 바뀐 플레이어의 캐시 삭제. 실패는 로그만 남긴다
func forgetUsers(ctx context.Context, c cache.Cache, logger *zap.Logger, ids ...string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userCacheKey(id)
	}
	if err := c.Del(ctx, keys...); err != nil {
		logger.Warn("User cache invalidation failed", zap.Strings("userIds", ids), zap.Error(err))
	}
}
