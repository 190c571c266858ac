package signing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGuard(t *testing.T, ttl time.Duration) (*redisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisGuard(client, ttl, zerolog.Nop()).(*redisGuard), mr
}

func TestRedisGuard_AcquireAndConflict(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	release, ok, err := g.TryAcquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(lockKey(7)))
	assert.Equal(t, time.Minute, mr.TTL(lockKey(7)))

	_, ok, err = g.TryAcquire(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, err := g.TryAcquire(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	other()

	release()
	release()
	assert.False(t, mr.Exists(lockKey(7)))

	again, ok, err := g.TryAcquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestRedisGuard_ReleaseAfterExpiryKeepsNewHolder(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	stale, ok, err := g.TryAcquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists(lockKey(7)))

	current, ok, err := g.TryAcquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	token, err := mr.Get(lockKey(7))
	require.NoError(t, err)

	stale()

	held, err := mr.Get(lockKey(7))
	require.NoError(t, err)
	assert.Equal(t, token, held)

	current()
	assert.False(t, mr.Exists(lockKey(7)))
}

func TestRedisGuard_ExtendsWhileHeld(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	g.refreshEvery = 10 * time.Millisecond

	release, ok, err := g.TryAcquire(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	mr.FastForward(50 * time.Second)
	assert.Eventually(t, func() bool {
		return mr.TTL(lockKey(7)) > 50*time.Second
	}, time.Second, 10*time.Millisecond)
}

func TestRedisGuard_RedisDown(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	mr.Close()

	_, ok, err := g.TryAcquire(context.Background(), 7)

	assert.False(t, ok)
	assert.ErrorContains(t, err, "failed to acquire signing lock")
}

func TestRedisGuard_LogsFailedRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	var buf bytes.Buffer
	g := NewRedisGuard(client, time.Minute, zerolog.New(&buf))

	release, ok, err := g.TryAcquire(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)

	mr.Close()
	release()

	assert.Contains(t, buf.String(), "failed to release signing lock")
}
