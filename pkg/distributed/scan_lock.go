package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultScanLockKey = "matchmaking:scan:lock"

// ScanLock 여러 서버 인스턴스 중 하나만 매칭 스캔을 돌리도록 하는 락
// 스캔이 TTL보다 오래 걸리면 보유 중에 TTL/2 간격으로 연장한다
type ScanLock struct {
	manager    *RedisLockManager
	key        string
	ttl        time.Duration
	instanceID string
	logger     *zap.Logger
}

func NewScanLock(client redis.UniversalClient, key string, ttl time.Duration, logger *zap.Logger) *ScanLock {
	if key == "" {
		key = DefaultScanLockKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanLock{
		manager:    NewRedisLockManager(client),
		key:        key,
		ttl:        ttl,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

func (s *ScanLock) InstanceID() string { return s.instanceID }

// TryAcquire 락을 얻으면 release 함수를 돌려준다. 다른 인스턴스가 보유 중이면 acquired=false
func (s *ScanLock) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	lock, err := s.manager.AcquireLock(ctx, s.key, s.instanceID, s.ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		s.logger.Debug("Scan lock held by another instance", zap.String("key", s.key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepAlive(lock, stop)
	}()

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			wg.Wait()
			err = lock.Release(ctx)
		})
		return err
	}
	return release, true, nil
}

func (s *ScanLock) keepAlive(lock *RedisLock, stop <-chan struct{}) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.ttl/2)
			err := lock.Extend(ctx, s.ttl)
			cancel()
			if err != nil {
				s.logger.Warn("Failed to extend scan lock",
					zap.String("instance_id", s.instanceID),
					zap.Error(err))
				if errors.Is(err, ErrLockNotHeld) {
					return
				}
			}
		}
	}
}
