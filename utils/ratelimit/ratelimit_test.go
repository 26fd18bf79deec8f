package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestWindowLimiter_Allow(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewWindowLimiter(client, "test", Rule{Limit: 3, Window: time.Minute}, zap.NewNop(), false)
	limiter.now = fixedClock(time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for i := range 3 {
		allowed, err := limiter.Allow(ctx, "PUT /channels")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "PUT /channels")
	require.NoError(t, err)
	assert.False(t, allowed)

	// other keys have their own budget
	allowed, err = limiter.Allow(ctx, "GET /users")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_RemainingAndReset(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewWindowLimiter(client, "test", Rule{Limit: 5, Window: time.Minute}, zap.NewNop(), false)
	limiter.now = fixedClock(time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	for range 7 {
		_, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
	}
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, limiter.Reset(ctx, "k"))
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestWindowLimiter_NextWindowRecovers(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	start := time.Unix(1_700_000_000, 0)
	limiter := NewWindowLimiter(client, "test", Rule{Limit: 1, Window: time.Second}, zap.NewNop(), false)
	limiter.now = fixedClock(start)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, "k")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "k")
	assert.False(t, allowed)

	limiter.now = fixedClock(start.Add(time.Second))
	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_FailOpenAndClosed(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	mr.Close()

	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}

	allowed, err := NewWindowLimiter(client, "test", rule, nil, true).Allow(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = NewWindowLimiter(client, "test", rule, nil, false).Allow(ctx, "k")
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestWait(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewWindowLimiter(client, "test", Rule{Limit: 1, Window: time.Hour}, nil, false)

	require.NoError(t, Wait(context.Background(), limiter, "k", time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Wait(ctx, limiter, "k", 5*time.Millisecond)
	assert.True(t, errors.Is(err, ErrLimited))
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, time.Hour, zap.NewNop())
	defer d.Stop()

	var mu sync.Mutex
	var calls []int
	for i := range 5 {
		d.Trigger("c1", func() {
			mu.Lock()
			calls = append(calls, i)
			mu.Unlock()
		})
	}
	assert.True(t, d.Pending("c1"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{4}, calls, "only the last function runs")
	assert.False(t, d.Pending("c1"))
}

func TestDebouncer_CeilingForcesFlush(t *testing.T) {
	d := NewDebouncer(time.Hour, 15*time.Second, nil)
	defer d.Stop()

	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	runs := 0
	d.Trigger("c1", func() { runs++ })
	now = now.Add(10 * time.Second)
	d.Trigger("c1", func() { runs++ })
	assert.Equal(t, 0, runs)

	now = now.Add(6 * time.Second)
	d.Trigger("c1", func() { runs++ })
	assert.Equal(t, 1, runs, "past the ceiling the call runs synchronously")
	assert.False(t, d.Pending("c1"))
}

func TestDebouncer_FlushAndCancel(t *testing.T) {
	d := NewDebouncer(time.Hour, time.Hour, nil)

	runs := 0
	d.Trigger("a", func() { runs++ })
	d.Trigger("b", func() { runs += 10 })

	assert.True(t, d.Flush("a"))
	assert.False(t, d.Flush("a"))
	assert.True(t, d.Cancel("b"))
	assert.False(t, d.Cancel("b"))
	assert.Equal(t, 1, runs)

	d.Trigger("c", func() { runs++ })
	d.Stop()
	assert.False(t, d.Pending("c"))
}
