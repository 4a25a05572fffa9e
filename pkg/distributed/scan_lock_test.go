package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScanLock_OneInstanceAtATime(t *testing.T) {
	client, mr := setupRedisClient(t)
	ctx := context.Background()

	first := NewScanLock(client, "", time.Minute, zap.NewNop())
	second := NewScanLock(client, "", time.Minute, zap.NewNop())
	require.NotEqual(t, first.InstanceID(), second.InstanceID())

	release, acquired, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)
	owner, err := mr.Get(DefaultScanLockKey)
	require.NoError(t, err)
	assert.Equal(t, first.InstanceID(), owner)

	_, acquired, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, release(ctx))
	// 두 번 호출해도 안전
	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(DefaultScanLockKey))

	release2, acquired, err := second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, release2(ctx))
}

func TestScanLock_KeepAliveExtends(t *testing.T) {
	client, mr := setupRedisClient(t)
	ctx := context.Background()

	lock := NewScanLock(client, "scan:test", 200*time.Millisecond, zap.NewNop())
	release, acquired, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)
	defer release(ctx)

	// miniredis는 FastForward 없이 만료되지 않으므로 TTL이 다시 설정되는지로 연장을 확인
	mr.SetTTL("scan:test", 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("scan:test") == 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScanLock_RedisDown(t *testing.T) {
	client, mr := setupRedisClient(t)
	mr.Close()

	_, acquired, err := NewScanLock(client, "", time.Second, nil).TryAcquire(context.Background())
	assert.Error(t, err)
	assert.False(t, acquired)
}
