// Package events delivers high level notifications to application code.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives every notification published on a Bus.
type Handler func(Notification)

// Bus is an ordered observer list. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []subscription
	logger   *zap.Logger
}

type subscription struct {
	id uint64
	fn Handler
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.handlers {
		if s.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers n to every handler. A panicking handler is logged and
// does not stop delivery to the others.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	handlers := make([]subscription, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, s := range handlers {
		b.deliver(s.fn, n)
	}
}

func (b *Bus) deliver(fn Handler, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Notification handler panicked",
				zap.String("kind", string(n.Kind())),
				zap.Any("panic", r),
			)
		}
	}()
	fn(n)
}

// Len returns the number of subscribed handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// On subscribes fn to notifications of type T only.
func On[T Notification](b *Bus, fn func(T)) func() {
	return b.Subscribe(func(n Notification) {
		if v, ok := n.(T); ok {
			fn(v)
		}
	})
}
