package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/chatsync/internal/relay"
	"github.com/Gopher0727/chatsync/pkg/events"
)

const defaultPrefix = "chatsync"

// Sink publishes notifications on "<prefix>:<kind>" channels and mirrors the
// connection state under "<prefix>:state".
type Sink struct {
	conn     Conn
	prefix   string
	stateTTL time.Duration
	now      func() time.Time
}

// NewSink takes ownership of conn: closing the sink closes it.
func NewSink(conn Conn, prefix string, stateTTL time.Duration) *Sink {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Sink{conn: conn, prefix: prefix, stateTTL: stateTTL, now: time.Now}
}

func (s *Sink) Name() string {
	return "redis"
}

// Channel returns the pub/sub channel used for kind.
func (s *Sink) Channel(kind events.Kind) string {
	return s.prefix + ":" + string(kind)
}

// StateKey returns the key holding the last connection state.
func (s *Sink) StateKey() string {
	return s.prefix + ":state"
}

func (s *Sink) Publish(ctx context.Context, n events.Notification) error {
	if sc, ok := n.(events.StateChanged); ok {
		if err := s.conn.Set(ctx, s.StateKey(), sc.State, s.stateTTL).Err(); err != nil {
			return fmt.Errorf("failed to store connection state: %w", err)
		}
	}

	payload, err := relay.Encode(n, s.now())
	if err != nil {
		return err
	}
	if err := s.conn.Publish(ctx, s.Channel(n.Kind()), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", n.Kind(), err)
	}
	return nil
}

// State returns the last recorded connection state, or "" when it expired.
func (s *Sink) State(ctx context.Context) (string, error) {
	v, err := s.conn.Get(ctx, s.StateKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read connection state: %w", err)
	}
	return v, nil
}

func (s *Sink) Close() error {
	return s.conn.Close()
}
