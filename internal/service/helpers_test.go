package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/internal/repository"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/cache"
)

type testEnv struct {
	store   *repository.MemoryStore
	cache   cache.Cache
	redis   *miniredis.Miniredis
	users   *UserService
	queue   *QueueService
	matches *MatchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := repository.NewMemoryStore()
	c := cache.NewRedisCache(client, "")
	logger := zap.NewNop()

	matches := NewMatchService(store, NewELOService(), logger)
	matches.SetCache(c)

	return &testEnv{
		store:   store,
		cache:   c,
		redis:   mr,
		users:   NewUserService(store, c, 0, logger),
		queue:   NewQueueService(store, c, []string{models.Mode1v1, "2v2"}, 0, logger),
		matches: matches,
	}
}

func (e *testEnv) register(t *testing.T, username, region string, rating int) *models.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), models.CreateUserRequest{
		Username: username,
		Region:   region,
		Rating:   &rating,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) enqueue(t *testing.T, userID string) models.QueueEntry {
	t.Helper()
	entry, err := e.queue.Join(context.Background(), userID, models.Mode1v1)
	require.NoError(t, err)
	return *entry
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	user, err := e.store.Users().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func (e *testEnv) queued(t *testing.T, id string) bool {
	t.Helper()
	entry, err := e.store.Queue().FindByPlayer(context.Background(), id)
	require.NoError(t, err)
	return entry != nil
}

// activeMatch 두 플레이어를 큐에 넣고 매치를 만든 뒤 시작까지 진행
func (e *testEnv) activeMatch(t *testing.T, a, b *models.User) *models.Match {
	t.Helper()
	ctx := context.Background()
	match, err := e.matches.Create(ctx, [2]models.QueueEntry{e.enqueue(t, a.ID), e.enqueue(t, b.ID)}, models.Mode1v1)
	require.NoError(t, err)
	match, err = e.matches.Start(ctx, match.ID)
	require.NoError(t, err)
	return match
}
