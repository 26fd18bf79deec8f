package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLimited is returned by Wait when the context ends before a slot frees up.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter defines the interface for rate limiting operations
type Limiter interface {
	// Allow reports whether one more request fits in key's current window.
	Allow(ctx context.Context, key string) (bool, error)

	// Remaining returns how many requests are left in key's current window.
	Remaining(ctx context.Context, key string) (int, error)

	// Reset clears key's current window.
	Reset(ctx context.Context, key string) error
}

// Rule is a request budget per fixed window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// WindowLimiter counts requests per key in fixed windows stored in Redis, so
// several processes sharing one account share one budget.
type WindowLimiter struct {
	redisClient *redis.Client
	rule        Rule
	prefix      string
	logger      *zap.Logger
	fallback    bool // If true, allow requests when Redis is unavailable (fail-open)
	now         func() time.Time
}

// NewWindowLimiter creates a Redis backed fixed-window limiter.
//
// Parameters:
//   - redisClient: Redis client for storing the counters
//   - prefix: Key namespace, e.g. "chatsync:ratelimit"
//   - rule: Budget applied to every key
//   - logger: Logger for recording rate limit events
//   - fallback: If true, allows requests when Redis fails (fail-open strategy)
func NewWindowLimiter(redisClient *redis.Client, prefix string, rule Rule, logger *zap.Logger, fallback bool) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{
		redisClient: redisClient,
		rule:        rule,
		prefix:      prefix,
		logger:      logger,
		fallback:    fallback,
		now:         time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucketKey := l.bucketKey(key, l.now())

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.Incr(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, l.rule.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("Rate limit check failed",
			zap.String("key", bucketKey),
			zap.Error(err),
		)
		if l.fallback {
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	allowed := count <= int64(l.rule.Limit)
	if !allowed {
		l.logger.Warn("Rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", l.rule.Limit),
		)
	}
	return allowed, nil
}

func (l *WindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, l.now())).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return l.rule.Limit, nil
		}
		return 0, fmt.Errorf("failed to get remaining requests: %w", err)
	}
	return max(l.rule.Limit-count, 0), nil
}

func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redisClient.Del(ctx, l.bucketKey(key, l.now())).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}

// Wait blocks until Allow succeeds for key, polling once per poll interval.
func Wait(ctx context.Context, l Limiter, key string, poll time.Duration) error {
	for {
		ok, err := l.Allow(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %s", ErrLimited, key)
		case <-t.C:
		}
	}
}

func (l *WindowLimiter) bucketKey(key string, now time.Time) string {
	window := l.rule.Window.Milliseconds()
	if window <= 0 {
		window = 1
	}
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, now.UnixMilli()/window)
}
