// Package backoff computes reconnect delays and tracks consecutive failures.
package backoff

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// DelayFunc maps a failure count to the wait before the next attempt.
type DelayFunc func(failures int) time.Duration

// DefaultDelay waits (2^n - 1) seconds, jittered by ±20%.
func DefaultDelay(failures int) time.Duration {
	return Jittered(failures, rand.Float64())
}

// Jittered is DefaultDelay with the random factor supplied by the caller.
// r must be in [0, 1); it maps onto a multiplier in [0.8, 1.2).
func Jittered(failures int, r float64) time.Duration {
	if failures <= 0 {
		return 0
	}
	// Cap the exponent so the duration cannot overflow.
	n := min(failures, 30)
	base := math.Pow(2, float64(n)) - 1
	factor := 0.8 + 0.4*r
	return time.Duration(base * factor * float64(time.Second))
}

// Counter counts consecutive connection failures.
type Counter struct {
	failures atomic.Int64
}

// Fail records one failure and returns the new count.
func (c *Counter) Fail() int {
	return int(c.failures.Add(1))
}

// Reset sets the count back to zero after a successful connection.
func (c *Counter) Reset() {
	c.failures.Store(0)
}

// Failures returns the current count.
func (c *Counter) Failures() int {
	return int(c.failures.Load())
}
