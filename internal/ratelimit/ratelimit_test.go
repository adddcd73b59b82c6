package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerMinute(t *testing.T) {
	rl := NewRateLimiter(2, 0, true)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per client")

	stats := rl.GetStats("a")
	assert.Equal(t, 2, stats.RequestsLastMinute)
	assert.Equal(t, 0, stats.RemainingThisMinute)

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"), "window slides after a minute")
}

func TestRateLimiterPerHour(t *testing.T) {
	rl := NewRateLimiter(0, 3, true)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("a"))
		now = now.Add(2 * time.Minute)
	}
	assert.False(t, rl.Allow("a"))

	now = now.Add(time.Hour)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("a"))
	}
	assert.False(t, rl.GetStats("a").Enabled)
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, 0, true)
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	rl.Reset()
	assert.True(t, rl.Allow("a"))
}

func TestHostLimiterSpacesRequestsPerHost(t *testing.T) {
	hl := NewHostLimiter(1, 30*time.Millisecond, 0)
	ctx := context.Background()

	require.NoError(t, hl.Acquire(ctx, "a.example"))
	hl.Release("a.example")

	start := time.Now()
	require.NoError(t, hl.Acquire(ctx, "a.example"))
	hl.Release("a.example")
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	start = time.Now()
	require.NoError(t, hl.Acquire(ctx, "b.example"))
	hl.Release("b.example")
	assert.Less(t, time.Since(start), 25*time.Millisecond, "other hosts are not delayed")
}

func TestHostLimiterCapsInFlight(t *testing.T) {
	hl := NewHostLimiter(1, 0, 0)
	require.NoError(t, hl.Acquire(context.Background(), "a.example"))
	assert.Equal(t, 1, hl.InFlight("a.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := hl.Acquire(ctx, "a.example")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	hl.Release("a.example")
	assert.Equal(t, 0, hl.InFlight("a.example"))
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, 100, true)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		require.True(t, rl.Allow(ip))
	}
	assert.Equal(t, 3, rl.Clients())

	// stats for an unknown client do not start tracking it
	assert.Equal(t, 10, rl.GetStats("10.0.0.9").RemainingThisMinute)
	assert.Equal(t, 3, rl.Clients())

	now = now.Add(time.Hour + time.Second)
	require.True(t, rl.Allow("10.0.0.4"))
	assert.Equal(t, 1, rl.Clients(), "clients with empty windows are dropped")

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, rl.GetStats("10.0.0.4").RequestsLastHour)
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 0, rl.GetStats("10.0.0.4").RequestsLastHour)
	assert.Equal(t, 0, rl.Clients())
}
