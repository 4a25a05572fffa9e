package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
)

func TestUserService_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Register(ctx, models.CreateUserRequest{Username: "  alice ", Region: "EU"})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.DefaultRating, user.Rating)
	assert.Equal(t, models.UserStatusIdle, user.Status)
	assert.Empty(t, user.MatchHistory)

	_, err = env.users.Register(ctx, models.CreateUserRequest{Username: "alice", Region: "NA"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestUserService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	negative := -5

	tests := []struct {
		name string
		req  models.CreateUserRequest
	}{
		{"missing username", models.CreateUserRequest{Region: "EU"}},
		{"blank region", models.CreateUserRequest{Username: "bob", Region: "   "}},
		{"negative rating", models.CreateUserRequest{Username: "bob", Region: "EU", Rating: &negative}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUserService_GetReadThrough(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice", "EU", 1400)
	assert.False(t, env.redis.Exists(userCacheKey(alice.ID)))

	got, err := env.users.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1400, got.Rating)
	assert.True(t, env.redis.Exists(userCacheKey(alice.ID)))

	// 저장소를 직접 바꿔도 캐시된 값이 반환된다
	require.NoError(t, env.store.Users().UpdateRating(ctx, alice.ID, 1500))
	got, err = env.users.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1400, got.Rating)

	env.redis.Del(userCacheKey(alice.ID))
	got, err = env.users.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500, got.Rating)

	_, err = env.users.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_CacheDownFallsBack(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "EU", 1200)
	env.redis.Close()

	got, err := env.users.Get(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}
