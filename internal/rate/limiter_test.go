package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, cfg Config) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, cfg), mr
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	l, mr := newRedisLimiter(t, Config{MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "alice", ""))
	}
	assert.ErrorIs(t, l.Allow(ctx, "alice", ""), ErrRateLimited)
	assert.NoError(t, l.Allow(ctx, "bob", ""), "budgets are per identifier")

	mr.FastForward(time.Minute)
	assert.NoError(t, l.Allow(ctx, "alice", ""))
}

func TestRedisLimiterIPBudget(t *testing.T) {
	l, _ := newRedisLimiter(t, Config{MaxAttempts: 2, Window: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "a", "10.0.0.1"))
	require.NoError(t, l.Allow(ctx, "b", "10.0.0.1"))
	assert.ErrorIs(t, l.Allow(ctx, "c", "10.0.0.1"), ErrRateLimited)
	assert.NoError(t, l.Allow(ctx, "c", "10.0.0.2"))
}

func TestRedisLimiterReset(t *testing.T) {
	l, mr := newRedisLimiter(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "alice", ""))
	require.NoError(t, l.Reset(ctx, "alice", ""))
	assert.False(t, mr.Exists(loginUserKey("alice")))
	assert.NoError(t, l.Allow(ctx, "alice", ""))
}

func TestRedisLimiterUnavailable(t *testing.T) {
	l, mr := newRedisLimiter(t, DefaultConfig())
	mr.Close()

	assert.ErrorIs(t, l.Allow(context.Background(), "alice", ""), ErrRedisUnavailable)
}

func TestLocalLimiterBurstAndRefill(t *testing.T) {
	l := NewLocal(Config{MaxAttempts: 2, Window: time.Minute, EnableIPThrottle: true})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "alice", "10.0.0.1"))
	require.NoError(t, l.Allow(ctx, "alice", "10.0.0.1"))
	assert.ErrorIs(t, l.Allow(ctx, "alice", "10.0.0.1"), ErrRateLimited)

	now = now.Add(30 * time.Second)
	assert.NoError(t, l.Allow(ctx, "alice", "10.0.0.1"))
}

func TestLocalLimiterReset(t *testing.T) {
	l := NewLocal(Config{MaxAttempts: 1, Window: time.Hour})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "alice", ""))
	assert.ErrorIs(t, l.Allow(ctx, "alice", ""), ErrRateLimited)
	require.NoError(t, l.Reset(ctx, "alice", ""))
	assert.NoError(t, l.Allow(ctx, "alice", ""))
}

func TestLocalLimiterSweepsIdleKeys(t *testing.T) {
	l := NewLocal(Config{MaxAttempts: 5, Window: time.Second})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "idle", ""))
	now = now.Add(time.Minute)
	for i := 0; i < idleSweepEvery; i++ {
		_ = l.Allow(ctx, "busy", "")
	}

	l.mu.Lock()
	_, ok := l.buckets[loginUserKey("idle")]
	l.mu.Unlock()
	assert.False(t, ok)
}

var (
	_ Limiter = (*Redis)(nil)
	_ Limiter = (*Local)(nil)
)
