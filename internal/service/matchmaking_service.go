package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/repository"
)

var (
	ErrScanInProgress = fmt.Errorf("%w: matchmaking scan already running", ErrConflict)
	ErrScanLocked     = fmt.Errorf("%w: matchmaking scan held by another instance", ErrConflict)
)

// MatchCreator 스캐너가 짝지은 두 플레이어를 매치로 확정한다
type MatchCreator interface {
	Create(ctx context.Context, pair [2]models.QueueEntry, mode string) (*models.Match, error)
}

// ScanGuard 여러 인스턴스 중 하나만 스캔하도록 막는 락
// 획득에 성공하면 release를 반환하고, 다른 인스턴스가 보유 중이면 acquired=false
type ScanGuard interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

type ScannerConfig struct {
	Interval time.Duration
	Modes    []string
	// Budget 한 번의 스캔이 이 시간을 넘기면 경고만 남기고 진행 중 트랜잭션은 그대로 둔다
	Budget time.Duration
	Rules  PairingRules
}

// ScanReport 한 번의 스캔 결과
type ScanReport struct {
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Regions     int           `json:"regions"`
	Pairs       int           `json:"pairs"`
	Created     int           `json:"created"`
	Conflicts   int           `json:"conflicts"`
	Failures    int           `json:"failures"`
	Leftover    int           `json:"leftover"`
	LongWaiters int           `json:"longWaiters"`
	FailedModes []string      `json:"failedModes,omitempty"`
	Overran     bool          `json:"overran"`
}

// MatchmakingService 주기적으로 큐를 훑어 매치를 만드는 스캐너
type MatchmakingService struct {
	queue    repository.Repositories
	creator  MatchCreator
	guard    ScanGuard
	cfg      ScannerConfig
	logger   *zap.Logger
	now      func() time.Time
	sem      chan struct{}
	skipped  atomic.Int64
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(
	store repository.Repositories,
	creator MatchCreator,
	cfg ScannerConfig,
	logger *zap.Logger,
) *MatchmakingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if len(cfg.Modes) == 0 {
		cfg.Modes = []string{models.Mode1v1}
	}
	if cfg.Rules == (PairingRules{}) {
		cfg.Rules = DefaultPairingRules()
	}

	return &MatchmakingService{
		queue:    store,
		creator:  creator,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sem:      make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// SetGuard 인스턴스 간 스캔 락 지정 (Redis가 있을 때만)
func (s *MatchmakingService) SetGuard(guard ScanGuard) {
	s.guard = guard
}

// Start 매칭 시스템 시작
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService",
		zap.Duration("interval", s.cfg.Interval),
		zap.Strings("modes", s.cfg.Modes))

	s.wg.Add(1)
	go s.matchmakingLoop(s.stopChan)
}

// Stop 매칭 시스템 중지. 진행 중인 스캔이 끝날 때까지 기다린다
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

// SkippedTicks 이전 스캔이 끝나지 않았거나 락을 못 얻어 건너뛴 틱 수
func (s *MatchmakingService) SkippedTicks() int64 {
	return s.skipped.Load()
}

// matchmakingLoop 주기적 매칭 실행
func (s *MatchmakingService) matchmakingLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stop:
			return
		}
	}
}

func (s *MatchmakingService) tick() {
	_, err := s.Scan(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress), errors.Is(err, ErrScanLocked):
		s.skipped.Add(1)
		s.logger.Debug("Skipping matchmaking tick", zap.Error(err))
	default:
		s.logger.Error("Matchmaking tick failed", zap.Error(err))
	}
}

// Scan 진행 중인 스캔이 있으면 기다리지 않고 ErrScanInProgress
func (s *MatchmakingService) Scan(ctx context.Context) (*ScanReport, error) {
	select {
	case s.sem <- struct{}{}:
	default:
		return nil, ErrScanInProgress
	}
	defer func() { <-s.sem }()

	return s.guardedScan(ctx)
}

// Trigger 수동 실행. 진행 중인 스캔이 끝나길 기다린 뒤 같은 로직을 동기로 돌린다
func (s *MatchmakingService) Trigger(ctx context.Context) (*ScanReport, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	s.logger.Info("Manual matchmaking triggered")
	return s.guardedScan(ctx)
}

func (s *MatchmakingService) guardedScan(ctx context.Context) (*ScanReport, error) {
	if s.guard != nil {
		release, acquired, err := s.guard.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
		}
		if !acquired {
			return nil, ErrScanLocked
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("Failed to release scan lock", zap.Error(err))
			}
		}()
	}
	return s.runScan(ctx), nil
}

// runScan 모드별로 region 그룹을 병렬 처리한다. 개별 매치 실패는 집계만 하고 계속 진행
func (s *MatchmakingService) runScan(ctx context.Context) *ScanReport {
	report := &ScanReport{StartedAt: s.now()}
	var mu sync.Mutex

	for _, mode := range s.cfg.Modes {
		groups, err := s.queue.Queue().GroupByRegion(ctx, mode)
		if err != nil {
			s.logger.Error("Failed to read matchmaking queue", zap.String("mode", mode), zap.Error(err))
			report.FailedModes = append(report.FailedModes, mode)
			continue
		}

		regions := make([]string, 0, len(groups))
		for region := range groups {
			regions = append(regions, region)
		}
		sort.Strings(regions)

		var g errgroup.Group
		for _, region := range regions {
			region, candidates := region, groups[region]
			g.Go(func() error {
				part := s.scanRegion(ctx, mode, region, candidates)
				mu.Lock()
				report.merge(part)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	report.Duration = time.Since(report.StartedAt)
	if s.cfg.Budget > 0 && report.Duration > s.cfg.Budget {
		report.Overran = true
		s.logger.Warn("Matchmaking scan exceeded budget",
			zap.Duration("duration", report.Duration),
			zap.Duration("budget", s.cfg.Budget))
	}

	if report.Pairs > 0 || report.Failures > 0 {
		s.logger.Info("Matchmaking completed",
			zap.Int("regions", report.Regions),
			zap.Int("pairs", report.Pairs),
			zap.Int("created", report.Created),
			zap.Int("conflicts", report.Conflicts),
			zap.Int("failures", report.Failures),
			zap.Int("leftover", report.Leftover),
			zap.Duration("duration", report.Duration))
	}
	return report
}

func (s *MatchmakingService) scanRegion(ctx context.Context, mode, region string, candidates []models.QueueEntry) ScanReport {
	part := ScanReport{Regions: 1}
	now := s.now()

	result := PairCandidates(candidates, now, s.cfg.Rules)
	part.Pairs = len(result.Pairs)
	part.Leftover = len(result.Leftover)
	part.LongWaiters = len(result.LongWaiters)

	for _, pair := range result.Pairs {
		match, err := s.creator.Create(ctx, pair, mode)
		switch {
		case err == nil:
			part.Created++
			s.logger.Debug("Paired players",
				zap.String("matchId", match.ID),
				zap.String("region", region),
				zap.String("player1", pair[0].PlayerID),
				zap.String("player2", pair[1].PlayerID))
		case errors.Is(err, ErrConflict):
			part.Conflicts++
			s.logger.Warn("Pair lost race, dropping",
				zap.String("region", region),
				zap.String("player1", pair[0].PlayerID),
				zap.String("player2", pair[1].PlayerID),
				zap.Error(err))
		default:
			part.Failures++
			s.logger.Error("Failed to create match",
				zap.String("region", region),
				zap.String("player1", pair[0].PlayerID),
				zap.String("player2", pair[1].PlayerID),
				zap.Error(err))
		}
	}

	for _, waiter := range result.LongWaiters {
		s.logger.Warn("Player waiting too long",
			zap.String("userId", waiter.PlayerID),
			zap.String("mode", mode),
			zap.String("region", region),
			zap.Int("rating", waiter.Rating),
			zap.Duration("wait", waiter.WaitTime(now)))
	}
	return part
}

func (r *ScanReport) merge(part ScanReport) {
	r.Regions += part.Regions
	r.Pairs += part.Pairs
	r.Created += part.Created
	r.Conflicts += part.Conflicts
	r.Failures += part.Failures
	r.Leftover += part.Leftover
	r.LongWaiters += part.LongWaiters
}
