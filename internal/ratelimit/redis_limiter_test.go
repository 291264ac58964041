package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewRedisLimiter(client, testLogger())
	limiter.now = func() time.Time { return now }

	return limiter, mr, &now
}

func TestRedisLimiter_BlocksOverLimit(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t)
	ctx := context.Background()
	rule := Rule{Limit: 2, Window: time.Minute}

	for want := 1; want >= 0; want-- {
		decision, err := limiter.Hit(ctx, "search:42", rule)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, want, decision.Remaining)
	}

	decision, err := limiter.Hit(ctx, "search:42", rule)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Zero(t, decision.Remaining)

	members, err := mr.ZMembers(keyPrefix + "search:42")
	require.NoError(t, err)
	assert.Len(t, members, 2, "rejected hits are not recorded")
	assert.True(t, mr.TTL(keyPrefix+"search:42") > 0)
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	limiter, _, now := newRedisLimiter(t)
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}
	start := *now

	_, err := limiter.Hit(ctx, "user:7", rule)
	require.NoError(t, err)

	*now = start.Add(20 * time.Second)
	blocked, err := limiter.Hit(ctx, "user:7", rule)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)
	assert.Equal(t, start.Add(time.Minute), blocked.RetryAt.UTC())
	assert.Equal(t, 40*time.Second, blocked.RetryAfter(*now))

	*now = start.Add(61 * time.Second)
	decision, err := limiter.Hit(ctx, "user:7", rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _, _ := newRedisLimiter(t)
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}

	first, err := limiter.Hit(ctx, "user:1", rule)
	require.NoError(t, err)
	second, err := limiter.Hit(ctx, "user:2", rule)
	require.NoError(t, err)

	assert.True(t, first.Allowed)
	assert.True(t, second.Allowed)
}

func TestRedisLimiter_ServerDown(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t)
	mr.Close()

	_, err := limiter.Hit(context.Background(), "user:1", Rule{Limit: 1, Window: time.Minute})
	assert.Error(t, err)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
