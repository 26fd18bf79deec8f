package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Debouncer collapses bursts of work per key. Each Trigger restarts the
// key's quiet-period timer and replaces the pending function; once the
// ceiling has passed since the first trigger of a burst, the next Trigger
// runs immediately instead of waiting again.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	ceiling time.Duration
	pending map[string]*pendingCall
	now     func() time.Time
	logger  *zap.Logger
}

type pendingCall struct {
	timer    *time.Timer
	fn       func()
	deadline time.Time
}

// NewDebouncer creates a Debouncer.
//
// Parameters:
//   - delay: Quiet period after the last Trigger before fn runs
//   - ceiling: Longest a burst may keep postponing fn
//   - logger: Logger for flush events; nil disables logging
//
// Returns:
//   - *Debouncer: The initialized debouncer
func NewDebouncer(delay, ceiling time.Duration, logger *zap.Logger) *Debouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debouncer{
		delay:   delay,
		ceiling: ceiling,
		pending: make(map[string]*pendingCall),
		now:     time.Now,
		logger:  logger,
	}
}

// Trigger schedules fn for key, replacing whatever was pending.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	now := d.now()

	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		if now.After(p.deadline) {
			delete(d.pending, key)
			d.mu.Unlock()

			d.logger.Debug("Debounce ceiling reached, flushing", zap.String("key", key))
			fn()
			return
		}
		p.fn = fn
	} else {
		p = &pendingCall{fn: fn, deadline: now.Add(d.ceiling)}
		d.pending[key] = p
	}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, p) })
	d.mu.Unlock()
}

func (d *Debouncer) fire(key string, p *pendingCall) {
	d.mu.Lock()
	if d.pending[key] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	fn := p.fn
	d.mu.Unlock()

	fn()
}

// Flush runs the pending function for key now. It reports whether one was
// pending.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		p.fn()
	}
	return ok
}

// Cancel drops the pending function for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	return ok
}

// Pending reports whether key has a scheduled function.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending function.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
