package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/Jerry-Khobby/matchmaking-system/pkg/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgresStore 테스트용 Postgres Store
// 주의: TEST_DATABASE_URL 이 설정된 경우에만 실행됩니다
func setupPostgresStore(t *testing.T) *PostgresStore {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(url)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	require.NoError(t, db.Migrate(context.Background()))

	_, err = db.Exec(`TRUNCATE matchmaking_queue, matches, users`)
	require.NoError(t, err)

	store := NewPostgresStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_RunAtomicRollsBack(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	seedUser(t, store, id)

	err := store.RunAtomic(ctx, func(tx Repositories) error {
		if err := tx.Users().UpdateRating(ctx, id, 1900); err != nil {
			return err
		}
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := store.Users().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRating, user.Rating)
}

func TestPostgresStore_QueueUniquePerPlayer(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	seedUser(t, store, id)

	entry := &models.QueueEntry{ID: uuid.NewString(), PlayerID: id, DisplayName: "x", Rating: 1200, Mode: "1v1", Region: "EU", JoinedAt: time.Now().UTC()}
	require.NoError(t, store.Queue().Insert(ctx, entry))

	dup := *entry
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, store.Queue().Insert(ctx, &dup), ErrDuplicate)

	groups, err := store.Queue().GroupByRegion(ctx, "1v1")
	require.NoError(t, err)
	assert.Len(t, groups["EU"], 1)
}

func TestPostgresStore_ConcurrentDeleteHasOneWinner(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	seedUser(t, store, id)
	require.NoError(t, store.Queue().Insert(ctx, &models.QueueEntry{
		ID: uuid.NewString(), PlayerID: id, DisplayName: "x", Rating: 1200, Mode: "1v1", Region: "EU", JoinedAt: time.Now().UTC(),
	}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.RunAtomic(ctx, func(tx Repositories) error {
				deleted, err := tx.Queue().DeleteByPlayer(ctx, id)
				if err != nil {
					return err
				}
				if deleted {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPostgresStore_MatchRoundTrip(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	match := &models.Match{
		ID:     uuid.NewString(),
		Mode:   "1v1",
		Region: "EU",
		Status: models.MatchStatusPending,
		Players: [2]models.MatchPlayer{
			{PlayerID: "p1", DisplayName: "alice", RatingAtCreation: 1200},
			{PlayerID: "p2", DisplayName: "bob", RatingAtCreation: 1250},
		},
		CreatedAt: now,
	}
	require.NoError(t, store.Matches().Insert(ctx, match))

	ok, err := store.Matches().TransitionStatus(ctx, match.ID, []models.MatchStatus{models.MatchStatusPending}, models.MatchStatusActive, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Matches().Finish(ctx, match.ID, "p2", models.MatchResult{WinnerRatingAfter: 1264, LoserRatingAfter: 1186, RatingDelta: 14}, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Matches().FindByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusFinished, got.Status)
	assert.Equal(t, "bob", got.Players[1].DisplayName)
	require.NotNil(t, got.Result)
	assert.Equal(t, 14, got.Result.RatingDelta)

	history, err := store.Matches().ListFinishedByPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
