// Package relay forwards client notifications to external systems.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/pkg/events"
)

// Sink receives every notification the client publishes.
type Sink interface {
	Name() string
	Publish(ctx context.Context, n events.Notification) error
	Close() error
}

// Envelope is the wire form of a relayed notification.
type Envelope struct {
	Kind    events.Kind     `json:"kind"`
	Subject string          `json:"subject,omitempty"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps n into an Envelope and marshals it.
func Encode(n events.Notification, at time.Time) ([]byte, error) {
	var payload any = n
	if ce, ok := n.(events.ConnectionError); ok {
		msg := ""
		if ce.Err != nil {
			msg = ce.Err.Error()
		}
		payload = struct {
			Error string `json:"error"`
		}{Error: msg}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s notification: %w", n.Kind(), err)
	}

	env := Envelope{Kind: n.Kind(), Subject: SubjectOf(n), At: at.UTC(), Data: data}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return out, nil
}

// SubjectOf returns the entity id n is scoped to, or "".
func SubjectOf(n events.Notification) string {
	if s, ok := n.(events.Subject); ok {
		return s.SubjectID()
	}
	return ""
}

// Fanout delivers notifications to several sinks. Failures are logged and
// never reach the publisher.
type Fanout struct {
	mu      sync.Mutex
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

func NewFanout(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{sinks: sinks, timeout: timeout, logger: logger}
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// Publish sends n to every sink in registration order.
func (f *Fanout) Publish(ctx context.Context, n events.Notification) {
	f.mu.Lock()
	sinks := append([]Sink(nil), f.sinks...)
	f.mu.Unlock()

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.Publish(sctx, n)
		cancel()
		if err != nil {
			f.logger.Warn("Relay failed",
				zap.String("sink", s.Name()),
				zap.String("kind", string(n.Kind())),
				zap.Error(err),
			)
		}
	}
}

// Attach subscribes the fanout to bus and returns the unsubscribe function.
func (f *Fanout) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(n events.Notification) {
		f.Publish(context.Background(), n)
	})
}

// Close closes every sink and returns the first error.
func (f *Fanout) Close() error {
	f.mu.Lock()
	sinks := f.sinks
	f.sinks = nil
	f.mu.Unlock()

	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("failed to close %s sink: %w", s.Name(), err)
		}
	}
	return first
}
