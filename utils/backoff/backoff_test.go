package backoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestJittered(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		r        float64
		want     time.Duration
	}{
		{"no failures", 0, 0.5, 0},
		{"first failure, midpoint", 1, 0.5, time.Second},
		{"third failure, low end", 3, 0, 5600 * time.Millisecond},
		{"third failure, midpoint", 3, 0.5, 7 * time.Second},
		{"negative count", -2, 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, float64(tt.want), float64(Jittered(tt.failures, tt.r)), float64(time.Millisecond))
		})
	}
}

func TestJittered_LargeCountDoesNotOverflow(t *testing.T) {
	assert.Positive(t, Jittered(1000, 0.99))
	assert.Equal(t, Jittered(30, 0.5), Jittered(1000, 0.5))
}

func TestProperty_DefaultDelayBounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("delay stays within 20% of 2^n-1 seconds", prop.ForAll(
		func(n int) bool {
			base := float64(int64(1)<<n-1) * float64(time.Second)
			d := float64(DefaultDelay(n))
			return d >= 0.8*base-1 && d <= 1.2*base+1
		},
		gen.IntRange(1, 20),
	))

	properties.Property("third attempt waits between 5.6s and 8.4s", prop.ForAll(
		func(_ int) bool {
			d := DefaultDelay(3)
			return d >= 5600*time.Millisecond && d <= 8400*time.Millisecond
		},
		gen.IntRange(0, 100),
	))

	properties.Property("midpoint delay grows with failures", prop.ForAll(
		func(n int) bool {
			return Jittered(n+1, 0.5) > Jittered(n, 0.5)
		},
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCounter(t *testing.T) {
	var c Counter
	assert.Equal(t, 0, c.Failures())
	assert.Equal(t, 1, c.Fail())
	assert.Equal(t, 2, c.Fail())
	assert.Equal(t, 2, c.Failures())

	c.Reset()
	assert.Equal(t, 0, c.Failures())
	assert.Equal(t, 1, c.Fail())
}
