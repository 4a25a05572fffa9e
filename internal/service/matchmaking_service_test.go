package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/repository"
)

// stubCreator Create 호출을 기록하고 지정된 에러를 돌려준다
type stubCreator struct {
	mu      sync.Mutex
	calls   [][2]models.QueueEntry
	err     error
	delay   time.Duration
	entered chan struct{}
	release chan struct{}
}

func (c *stubCreator) Create(ctx context.Context, pair [2]models.QueueEntry, mode string) (*models.Match, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.calls = append(c.calls, pair)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &models.Match{ID: "m-" + pair[0].PlayerID}, nil
}

type stubGuard struct {
	acquired bool
	err      error
	released int
}

func (g *stubGuard) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if g.err != nil || !g.acquired {
		return nil, false, g.err
	}
	return func(context.Context) error {
		g.released++
		return nil
	}, true, nil
}

type failingQueue struct {
	repository.QueueRepository
}

func (failingQueue) GroupByRegion(ctx context.Context, mode string) (map[string][]models.QueueEntry, error) {
	return nil, errors.New("connection refused")
}

type failingRepos struct{ repository.Repositories }

func (failingRepos) Queue() repository.QueueRepository { return failingQueue{} }

func seedQueue(t *testing.T, store *repository.MemoryStore, entries ...models.QueueEntry) {
	t.Helper()
	for i := range entries {
		require.NoError(t, store.Queue().Insert(context.Background(), &entries[i]))
	}
}

func queueEntry(player, region string, rating int, wait time.Duration) models.QueueEntry {
	return models.QueueEntry{
		ID:          "q-" + player,
		PlayerID:    player,
		DisplayName: player,
		Rating:      rating,
		Mode:        models.Mode1v1,
		Region:      region,
		JoinedAt:    time.Now().UTC().Add(-wait),
	}
}

func newScanner(store repository.Repositories, creator MatchCreator, cfg ScannerConfig) *MatchmakingService {
	return NewMatchmakingService(store, creator, cfg, zap.NewNop())
}

func TestMatchmakingService_ScanCreatesMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for name, rating := range map[string]int{"a": 1200, "b": 1250, "c": 1600, "d": 1650, "e": 2400} {
		env.enqueue(t, env.register(t, name, "EU", rating).ID)
	}

	scanner := newScanner(env.store, env.matches, ScannerConfig{})
	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Regions)
	assert.Equal(t, 2, report.Pairs)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Leftover)
	assert.Zero(t, report.Conflicts)
	assert.False(t, report.Overran)

	count, err := env.store.Matches().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	groups, err := env.store.Queue().GroupByRegion(ctx, models.Mode1v1)
	require.NoError(t, err)
	require.Len(t, groups["EU"], 1)
	assert.Equal(t, 2400, groups["EU"][0].Rating)
}

func TestMatchmakingService_RegionsNeverMix(t *testing.T) {
	store := repository.NewMemoryStore()
	seedQueue(t, store,
		queueEntry("eu", "EU", 1200, 5*time.Second),
		queueEntry("na", "NA", 1200, 4*time.Second),
		queueEntry("as", "ASIA", 1200, 3*time.Second),
	)
	creator := &stubCreator{}

	report, err := newScanner(store, creator, ScannerConfig{}).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Regions)
	assert.Zero(t, report.Pairs)
	assert.Equal(t, 3, report.Leftover)
	assert.Empty(t, creator.calls)
}

func TestMatchmakingService_ConflictsAndFailuresCounted(t *testing.T) {
	store := repository.NewMemoryStore()
	seedQueue(t, store,
		queueEntry("a", "EU", 1200, 4*time.Second),
		queueEntry("b", "EU", 1200, 3*time.Second),
		queueEntry("c", "NA", 1200, 4*time.Second),
		queueEntry("d", "NA", 1200, 3*time.Second),
	)

	conflict := &stubCreator{err: ErrConflict}
	report, err := newScanner(store, conflict, ScannerConfig{}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pairs)
	assert.Equal(t, 2, report.Conflicts)
	assert.Zero(t, report.Created)
	assert.Len(t, conflict.calls, 2, "scan continues after a failed pair")

	broken := &stubCreator{err: ErrStorage}
	report, err = newScanner(store, broken, ScannerConfig{}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failures)
}

func TestMatchmakingService_LongWaiters(t *testing.T) {
	store := repository.NewMemoryStore()
	seedQueue(t, store,
		queueEntry("old", "EU", 1000, 2*time.Minute),
		queueEntry("new", "EU", 1900, 2*time.Second),
	)

	report, err := newScanner(store, &stubCreator{}, ScannerConfig{}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Leftover)
	assert.Equal(t, 1, report.LongWaiters)
}

func TestMatchmakingService_QueueReadFailureAbortsMode(t *testing.T) {
	report, err := newScanner(failingRepos{}, &stubCreator{}, ScannerConfig{Modes: []string{"1v1", "2v2"}}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1v1", "2v2"}, report.FailedModes)
	assert.Zero(t, report.Pairs)
}

func TestMatchmakingService_BudgetOverrun(t *testing.T) {
	store := repository.NewMemoryStore()
	seedQueue(t, store,
		queueEntry("a", "EU", 1200, 4*time.Second),
		queueEntry("b", "EU", 1200, 3*time.Second),
	)

	scanner := newScanner(store, &stubCreator{delay: 20 * time.Millisecond}, ScannerConfig{Budget: time.Millisecond})
	report, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Overran)
	assert.Equal(t, 1, report.Created)
}

func TestMatchmakingService_SingleFlight(t *testing.T) {
	store := repository.NewMemoryStore()
	seedQueue(t, store,
		queueEntry("a", "EU", 1200, 4*time.Second),
		queueEntry("b", "EU", 1200, 3*time.Second),
	)
	creator := &stubCreator{entered: make(chan struct{}, 4), release: make(chan struct{})}
	scanner := newScanner(store, creator, ScannerConfig{})

	first := make(chan *ScanReport, 1)
	go func() {
		report, err := scanner.Trigger(context.Background())
		assert.NoError(t, err)
		first <- report
	}()
	<-creator.entered

	// tick은 기다리지 않고 건너뛴다
	_, err := scanner.Scan(context.Background())
	assert.ErrorIs(t, err, ErrScanInProgress)

	// 수동 트리거는 컨텍스트가 끝날 때까지 기다린다
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = scanner.Trigger(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	second := make(chan *ScanReport, 1)
	go func() {
		report, err := scanner.Trigger(context.Background())
		assert.NoError(t, err)
		second <- report
	}()

	close(creator.release)
	report := <-first
	assert.Equal(t, 1, report.Created)

	select {
	case report := <-second:
		require.NotNil(t, report)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting trigger did not run after the in-flight scan finished")
	}
}

func TestMatchmakingService_Guard(t *testing.T) {
	store := repository.NewMemoryStore()
	scanner := newScanner(store, &stubCreator{}, ScannerConfig{})

	held := &stubGuard{acquired: false}
	scanner.SetGuard(held)
	_, err := scanner.Scan(context.Background())
	assert.ErrorIs(t, err, ErrScanLocked)

	broken := &stubGuard{err: errors.New("redis down")}
	scanner.SetGuard(broken)
	_, err = scanner.Trigger(context.Background())
	assert.Error(t, err)

	free := &stubGuard{acquired: true}
	scanner.SetGuard(free)
	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, free.released)
}

func TestMatchmakingService_StartStop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueue(t, env.register(t, "a", "EU", 1200).ID)
	env.enqueue(t, env.register(t, "b", "EU", 1220).ID)

	scanner := newScanner(env.store, env.matches, ScannerConfig{Interval: time.Hour})
	scanner.Start()
	scanner.Start()

	// 시작 직후 한 번 실행된다
	require.Eventually(t, func() bool {
		count, err := env.store.Matches().Count(ctx)
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)

	scanner.Stop()
	scanner.Stop()
}

func TestMatchmakingService_TickSkipsWhenLocked(t *testing.T) {
	scanner := newScanner(repository.NewMemoryStore(), &stubCreator{}, ScannerConfig{})
	scanner.SetGuard(&stubGuard{acquired: false})

	scanner.tick()
	scanner.tick()
	assert.Equal(t, int64(2), scanner.SkippedTicks())
}

func TestMatchmakingService_NilLoggerIsNop(t *testing.T) {
	store := repository.NewMemoryStore()
	seedQueue(t, store,
		queueEntry("p1", "EU", 1200, time.Second),
		queueEntry("p2", "EU", 1210, time.Second),
	)

	scanner := NewMatchmakingService(store, &stubCreator{}, ScannerConfig{}, nil)
	assert.False(t, scanner.logger.Core().Enabled(zapcore.ErrorLevel))

	report, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}
