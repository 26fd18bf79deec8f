// Package gateway runs the event-stream connection: it dials the socket,
// keeps it alive with heartbeats and decides which frames are legal in the
// current connection state.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/config"
	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/pkg/logger"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

// ProtocolVersion is the event-stream protocol spoken by this package.
const ProtocolVersion = 1

// State is the lifecycle stage of a connection.
type State string

const (
	Idle         State = "Idle"
	Connecting   State = "Connecting"
	Connected    State = "Connected"
	Disconnected State = "Disconnected"
)

// URL builds the event-stream address for base and token.
func URL(base, token string) string {
	return fmt.Sprintf("%s?version=%d&format=json&token=%s", base, ProtocolVersion, url.QueryEscape(token))
}

// session is the state of one connection attempt. Everything but the
// transport itself is guarded by Connection.mu.
type session struct {
	transport    Transport
	cancelDial   context.CancelFunc
	done         chan struct{}
	connectTimer *time.Timer
	pongTimer    *time.Timer
	closing      bool
	finishOnce   sync.Once
}

func (s *session) stopTimers() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if s.pongTimer != nil {
		s.pongTimer.Stop()
		s.pongTimer = nil
	}
}

// Connection is the event-stream state machine. Frames are read on a
// dedicated goroutine per transport; observers run on that goroutine.
type Connection struct {
	cfg    config.ClientConfig
	dialer Dialer
	log    *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	cur       *session
	lastError *errs.LastError
	latency   time.Duration

	obsMu   sync.RWMutex
	onState []func(State)
	onEvent []func(protocol.Event)
	onError []func(error)
	onFatal []func(error)
}

// NewConnection creates an idle connection.
//
// Parameters:
//   - dialer: Opens transports; nil uses WebsocketDialer
//   - cfg: Heartbeat, pong and connect timings plus the debug flag
//   - log: Logger for lifecycle and frame logs; nil disables logging
//
// Returns:
//   - *Connection: The connection in the Idle state
func NewConnection(dialer Dialer, cfg config.ClientConfig, log *logger.Logger) *Connection {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Connection{
		cfg:     cfg,
		dialer:  dialer,
		log:     log,
		now:     time.Now,
		state:   Idle,
		latency: -1,
	}
}

// OnState registers fn for every state transition.
func (c *Connection) OnState(fn func(State)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onState = append(c.onState, fn)
}

// OnEvent registers fn for every frame forwarded to the reconciler.
func (c *Connection) OnEvent(fn func(protocol.Event)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onEvent = append(c.onEvent, fn)
}

// OnError registers fn for transport and server errors.
func (c *Connection) OnError(fn func(error)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onError = append(c.onError, fn)
}

// OnFatal registers fn for protocol violations found on the read loop. The
// connection is torn down right after fn returns.
func (c *Connection) OnFatal(fn func(error)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onFatal = append(c.onFatal, fn)
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latency is the last measured heartbeat round trip, or -1 before the first
// Pong.
func (c *Connection) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// LastError returns the most recent transport or server error of the current
// connection attempt.
func (c *Connection) LastError() *errs.LastError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Connect tears down any live connection and dials uri. It returns once the
// transport is open; the Ready snapshot arrives asynchronously.
func (c *Connection) Connect(ctx context.Context, uri, token string) error {
	c.Disconnect()

	dialCtx, cancel := context.WithCancel(ctx)
	s := &session{cancelDial: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.lastError = nil
	c.cur = s
	c.state = Connecting
	if c.cfg.ConnectTimeout > 0 {
		s.connectTimer = time.AfterFunc(c.cfg.ConnectTimeout, func() {
			c.log.Warn("Connect timeout, no frame received", zap.Duration("timeout", c.cfg.ConnectTimeout))
			c.disconnectSession(s)
		})
	}
	c.mu.Unlock()
	c.emitState(Connecting)

	c.log.Debug("Connecting to event stream", zap.String("uri", uri))
	transport, err := c.dialer.Dial(dialCtx, URL(uri, token))
	if err != nil {
		c.finish(s, err)
		return fmt.Errorf("failed to dial event stream: %w", err)
	}

	c.mu.Lock()
	if c.cur != s || s.closing {
		c.mu.Unlock()
		_ = transport.Close()
		c.finish(s, nil)
		return errs.ErrSocketClosed
	}
	s.transport = transport
	c.mu.Unlock()

	go c.readLoop(s)
	go c.heartbeat(s)
	return nil
}

// Disconnect closes the live connection and stops its timers. It reports
// whether there was anything to tear down.
func (c *Connection) Disconnect() bool {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()

	if s == nil {
		return false
	}
	return c.disconnectSession(s)
}

func (c *Connection) disconnectSession(s *session) bool {
	c.mu.Lock()
	if c.cur != s {
		c.mu.Unlock()
		return false
	}
	s.closing = true
	c.mu.Unlock()

	s.cancelDial()
	c.finish(s, nil)
	return true
}

// finish moves s to Disconnected exactly once: timers stop, the transport is
// closed and cause, if unexpected, becomes the last error.
func (c *Connection) finish(s *session, cause error) {
	s.finishOnce.Do(func() {
		c.mu.Lock()
		s.stopTimers()
		close(s.done)
		current := c.cur == s
		if current {
			c.cur = nil
			c.state = Disconnected
		}
		var reported error
		if cause != nil && !s.closing && !IsNormalClose(cause) {
			le := &errs.LastError{Kind: errs.LastErrorSocket, Err: cause}
			if current {
				c.lastError = le
			}
			reported = le
		}
		transport := s.transport
		c.mu.Unlock()

		if transport != nil {
			if err := transport.Close(); err != nil {
				c.log.Debug("Transport close failed", zap.Error(err))
			}
		}
		if reported != nil {
			c.log.Warn("Event stream error", zap.Error(cause))
			c.emitError(reported)
		}
		if current {
			c.log.Info("Event stream disconnected")
			c.emitState(Disconnected)
		}
	})
}

// Send writes msg to the live transport.
func (c *Connection) Send(msg protocol.ClientMessage) error {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()

	if s == nil {
		return errs.ErrSocketClosed
	}
	return c.sendOn(s, msg)
}

func (c *Connection) sendOn(s *session, msg protocol.ClientMessage) error {
	c.mu.Lock()
	transport := s.transport
	if c.cur != s {
		transport = nil
	}
	c.mu.Unlock()
	if transport == nil {
		return errs.ErrSocketClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", msg.Type, err)
	}
	if c.cfg.Debug {
		c.log.Frame(logger.Outbound, data)
	}
	if err := transport.WriteMessage(data); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", msg.Type, err)
	}
	return nil
}

// Handle applies one decoded frame. Ping, Pong and Error are handled in any
// state; every other frame must be legal for the current state, otherwise a
// *errs.ProtocolError is returned.
func (c *Connection) Handle(ev protocol.Event) error {
	switch e := ev.(type) {
	case *protocol.PingEvent:
		return c.Send(protocol.Pong(e.Data))
	case *protocol.PongEvent:
		c.mu.Lock()
		if c.cur != nil && c.cur.pongTimer != nil {
			c.cur.pongTimer.Stop()
			c.cur.pongTimer = nil
		}
		c.latency = c.now().Sub(time.UnixMilli(e.Data))
		latency := c.latency
		c.mu.Unlock()
		if c.cfg.Debug {
			c.log.Debug("Heartbeat", zap.Duration("latency", latency))
		}
		return nil
	case *protocol.ErrorEvent:
		le := &errs.LastError{Kind: errs.LastErrorServer, Data: e.Data}
		c.mu.Lock()
		c.lastError = le
		c.mu.Unlock()
		c.log.Warn("Server reported error", zap.ByteString("data", e.Data))
		c.emitError(le)
		c.Disconnect()
		return nil
	}

	c.mu.Lock()
	state := c.state
	switch state {
	case Connecting:
		switch ev.(type) {
		case *protocol.AuthenticatedEvent:
			c.mu.Unlock()
			return nil
		case *protocol.ReadyEvent:
			c.mu.Unlock()
			c.emitEvent(ev)
			c.setState(Connected)
			return nil
		}
	case Connected:
		switch ev.(type) {
		case *protocol.AuthenticatedEvent, *protocol.ReadyEvent:
		default:
			c.mu.Unlock()
			c.emitEvent(ev)
			return nil
		}
	}
	c.mu.Unlock()
	return &errs.ProtocolError{Frame: string(ev.Type()), State: string(state)}
}

func (c *Connection) setState(state State) {
	c.mu.Lock()
	if c.state == state || c.cur == nil {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.log.Info("Event stream state changed", zap.String("state", string(state)))
	c.emitState(state)
}

func (c *Connection) readLoop(s *session) {
	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			c.finish(s, err)
			return
		}

		c.mu.Lock()
		current := c.cur == s
		if s.connectTimer != nil {
			s.connectTimer.Stop()
			s.connectTimer = nil
		}
		c.mu.Unlock()
		if !current {
			return
		}

		if c.cfg.Debug {
			c.log.Frame(logger.Inbound, data)
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			err = fmt.Errorf("%w: %w", errs.ErrUnreachableCode, err)
		} else {
			err = c.Handle(ev)
		}
		if errors.Is(err, errs.ErrUnreachableCode) {
			c.log.Error("Fatal frame", zap.Error(err))
			c.emitFatal(err)
			c.disconnectSession(s)
			return
		}
		if err != nil {
			c.log.Debug("Frame handling failed", zap.Error(err))
		}
	}
}

func (c *Connection) heartbeat(s *session) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := c.sendOn(s, protocol.Ping(c.now().UnixMilli())); err != nil {
				c.log.Debug("Heartbeat ping failed", zap.Error(err))
				continue
			}
			c.mu.Lock()
			if c.cur == s {
				if s.pongTimer != nil {
					s.pongTimer.Stop()
				}
				s.pongTimer = time.AfterFunc(c.cfg.PongTimeout, func() {
					c.log.Warn("Pong timeout", zap.Duration("timeout", c.cfg.PongTimeout))
					c.disconnectSession(s)
				})
			}
			c.mu.Unlock()
		}
	}
}

func (c *Connection) emitState(state State) {
	c.obsMu.RLock()
	handlers := append([]func(State){}, c.onState...)
	c.obsMu.RUnlock()
	for _, fn := range handlers {
		fn(state)
	}
}

func (c *Connection) emitEvent(ev protocol.Event) {
	c.obsMu.RLock()
	handlers := append([]func(protocol.Event){}, c.onEvent...)
	c.obsMu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (c *Connection) emitError(err error) {
	c.obsMu.RLock()
	handlers := append([]func(error){}, c.onError...)
	c.obsMu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (c *Connection) emitFatal(err error) {
	c.obsMu.RLock()
	handlers := append([]func(error){}, c.onFatal...)
	c.obsMu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}
