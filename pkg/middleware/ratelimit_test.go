package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitConfig_Normalize(t *testing.T) {
	c := RateLimitConfig{BurstSize: -1}.normalize()
	assert.Equal(t, 600, c.RequestsPerWindow)
	assert.Equal(t, time.Minute, c.WindowDuration)
	assert.Equal(t, 0, c.BurstSize)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute, BurstSize: 1})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		d, err := rl.Allow(ctx, "shop:S1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.InDelta(t, float64(20*time.Second), float64(d.RetryAfter), float64(time.Millisecond))

	// Other keys have their own bucket
	d, err = rl.Allow(ctx, "shop:S2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// One token refills every 20s
	now = now.Add(21 * time.Second)
	d, err = rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = rl.Allow(ctx, "shop:old")
	now = now.Add(90 * time.Second)
	_, _ = rl.Allow(ctx, "shop:new")
	now = now.Add(45 * time.Second)

	rl.Cleanup()
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 10 * time.Millisecond})
	start := time.Now()
	rl.now = func() time.Time { return start }
	_, _ = rl.Allow(context.Background(), "shop:S1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl.now = func() time.Time { return start.Add(time.Hour) }
	rl.StartCleanup(ctx)

	assert.Eventually(t, func() bool { return rl.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func newDistributed(t *testing.T, cfg RateLimitConfig) (*DistributedRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDistributedRateLimiter(client, cfg, "ratelimit:queue_analytics"), mr
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	rl, mr := newDistributed(t, RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	ctx := context.Background()

	d, err := rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:queue_analytics:shop:S1"))

	d, err = rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	d, err = rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDistributedRateLimiter_Reset(t *testing.T) {
	rl, mr := newDistributed(t, RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	_, _ = rl.Allow(ctx, "shop:S1")
	d, _ := rl.Allow(ctx, "shop:S1")
	assert.False(t, d.Allowed)

	require.NoError(t, rl.Reset(ctx, "shop:S1"))
	d, err := rl.Allow(ctx, "shop:S1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	assert.Equal(t, time.Minute, mr.TTL("ratelimit:queue_analytics:shop:S1"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	rl, mr := newDistributed(t, RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	mr.Close()

	d, err := rl.Allow(context.Background(), "shop:S1")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}
