// Package client is the entry point of the sync engine. It wires the
// event-stream connection, the reconciler, the entity cache and the REST
// client together and owns the session.
package client

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/config"
	"github.com/Gopher0727/chatsync/internal/gateway"
	"github.com/Gopher0727/chatsync/internal/reconcile"
	"github.com/Gopher0727/chatsync/internal/relay"
	"github.com/Gopher0727/chatsync/internal/rest"
	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/logger"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/permission"
	"github.com/Gopher0727/chatsync/pkg/permission/resolver"
	"github.com/Gopher0727/chatsync/pkg/protocol"
	"github.com/Gopher0727/chatsync/utils/backoff"
	"github.com/Gopher0727/chatsync/utils/ratelimit"
)

// DefaultWSURL is dialed when neither the configuration nor the API root
// names an event-stream endpoint.
const DefaultWSURL = "wss://ws.revolt.chat"

const (
	ackDelay   = 5 * time.Second
	ackCeiling = 15 * time.Second
)

// SessionState is the client's view of its session.
type SessionState string

const (
	SessionOffline    SessionState = "Offline"
	SessionConnecting SessionState = "Connecting"
	SessionReady      SessionState = "Ready"
)

// Session authenticates the client. Bot sessions carry only a token.
type Session struct {
	ID     string
	UserID string
	Token  string
	Name   string
	Bot    bool
}

// Client mirrors the server state of one account.
type Client struct {
	cfg config.ClientConfig
	log *logger.Logger

	cache      *model.Cache
	bus        *events.Bus
	api        *rest.Client
	conn       *gateway.Connection
	reconciler *reconcile.Reconciler
	resolver   *resolver.Resolver
	acks       *ratelimit.Debouncer
	fanout     *relay.Fanout
	failures   backoff.Counter

	retryDelay     backoff.DelayFunc
	channelIsMuted func(model.Channel) bool

	ctx    context.Context
	cancel context.CancelFunc
	fatal  chan error

	mu             sync.Mutex
	session        *Session
	state          SessionState
	root           *rest.RootConfig
	wantConnected  bool
	closed         bool
	reconnectTimer *time.Timer
	manuallyMarked map[string]bool
}

type options struct {
	logger     *logger.Logger
	dialer     gateway.Dialer
	httpClient *http.Client
	limiter    ratelimit.Limiter
	limitPoll  time.Duration
	retryDelay backoff.DelayFunc
	muted      func(model.Channel) bool
	sinks      []relay.Sink
	ackDelay   time.Duration
	ackCeiling time.Duration
}

// Option configures a Client.
type Option func(*options)

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d gateway.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRESTLimiter makes every REST call wait for a slot in limiter.
func WithRESTLimiter(l ratelimit.Limiter, poll time.Duration) Option {
	return func(o *options) {
		o.limiter = l
		o.limitPoll = poll
	}
}

// WithRetryDelay replaces the reconnect policy. fn receives the number of
// consecutive failures, starting at 1.
func WithRetryDelay(fn backoff.DelayFunc) Option {
	return func(o *options) { o.retryDelay = fn }
}

// WithChannelIsMuted decides which channels never count as unread.
func WithChannelIsMuted(fn func(model.Channel) bool) Option {
	return func(o *options) { o.muted = fn }
}

// WithSinks relays every notification to sinks.
func WithSinks(sinks ...relay.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithAckTiming overrides the acknowledgement debounce window and ceiling.
func WithAckTiming(delay, ceiling time.Duration) Option {
	return func(o *options) {
		o.ackDelay = delay
		o.ackCeiling = ceiling
	}
}

// New creates an offline client for cfg.
func New(cfg config.ClientConfig, opts ...Option) *Client {
	o := options{
		retryDelay: backoff.DefaultDelay,
		ackDelay:   ackDelay,
		ackCeiling: ackCeiling,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New(nil)
	}
	if o.muted == nil {
		muted := slices.Clone(cfg.MutedChannels)
		o.muted = func(ch model.Channel) bool { return slices.Contains(muted, ch.Base().ID) }
	}

	restOpts := []rest.Option{rest.WithLogger(o.logger.Logger)}
	if o.httpClient != nil {
		restOpts = append(restOpts, rest.WithHTTPClient(o.httpClient))
	}
	if o.limiter != nil {
		restOpts = append(restOpts, rest.WithLimiter(o.limiter, o.limitPoll))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:            cfg,
		log:            o.logger,
		cache:          model.NewCache(),
		bus:            events.NewBus(o.logger.Logger),
		api:            rest.New(cfg.BaseURL, restOpts...),
		conn:           gateway.NewConnection(o.dialer, cfg, o.logger),
		acks:           ratelimit.NewDebouncer(o.ackDelay, o.ackCeiling, o.logger.Logger),
		fanout:         relay.NewFanout(o.logger.Logger, 0, o.sinks...),
		retryDelay:     o.retryDelay,
		channelIsMuted: o.muted,
		ctx:            ctx,
		cancel:         cancel,
		fatal:          make(chan error, 1),
		state:          SessionOffline,
		manuallyMarked: make(map[string]bool),
	}
	c.resolver = resolver.New(c.cache)
	c.reconciler = reconcile.New(c.cache, c.bus, c.api, reconcile.Options{
		SyncUnreads: cfg.SyncUnreads,
		OnReady:     c.markReady,
		Logger:      o.logger.Logger,
	})
	if c.fanout.Len() > 0 {
		c.fanout.Attach(c.bus)
	}

	c.conn.OnEvent(c.handleEvent)
	c.conn.OnState(c.handleState)
	c.conn.OnError(func(err error) {
		c.bus.Publish(events.ConnectionError{Err: err})
	})
	c.conn.OnFatal(c.handleFatal)
	return c
}

// Cache exposes the entity stores. Entities must be treated as read only.
func (c *Client) Cache() *model.Cache {
	return c.cache
}

// Events is the notification bus.
func (c *Client) Events() *events.Bus {
	return c.bus
}

// API is the authenticated REST client.
func (c *Client) API() *rest.Client {
	return c.api
}

// User returns the current user once the Ready snapshot named it.
func (c *Client) User() (*model.User, bool) {
	return c.cache.Self()
}

// Ready reports whether the Ready snapshot of the current connection has
// been applied.
func (c *Client) Ready() bool {
	return c.SessionState() == SessionReady
}

func (c *Client) SessionState() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionState is the state of the event-stream connection.
func (c *Client) ConnectionState() gateway.State {
	return c.conn.State()
}

// ConnectionFailures counts disconnects since the last successful connection.
func (c *Client) ConnectionFailures() int {
	return c.failures.Failures()
}

// Latency is the last heartbeat round trip, or -1 before the first one.
func (c *Client) Latency() time.Duration {
	return c.conn.Latency()
}

// LastError is the most recent connection error.
func (c *Client) LastError() *errs.LastError {
	return c.conn.LastError()
}

// Connect opens the event stream with the current session. It returns once
// the socket is open; Ready is announced on the bus.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errs.ErrSocketClosed
	}
	if c.session == nil {
		c.mu.Unlock()
		return errs.ErrNoSession
	}
	token := c.session.Token
	c.stopReconnectLocked()
	c.wantConnected = false
	c.mu.Unlock()

	c.conn.Disconnect()

	c.mu.Lock()
	c.wantConnected = true
	c.state = SessionConnecting
	c.mu.Unlock()

	ctx = logger.WithTraceID(ctx, "")
	uri := c.wsURL()
	c.log.InfoContext(ctx, "Connecting",
		zap.String("ws", uri),
		zap.Int("failures", c.failures.Failures()),
	)
	return c.conn.Connect(ctx, uri, token)
}

// Disconnect closes the event stream and cancels any pending reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopReconnectLocked()
	c.wantConnected = false
	c.mu.Unlock()

	c.conn.Disconnect()

	c.mu.Lock()
	c.state = SessionOffline
	c.mu.Unlock()
}

// Run blocks until ctx ends or the connection reports a protocol violation,
// which is returned. The client is closed on return.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	select {
	case <-ctx.Done():
		return nil
	case err := <-c.fatal:
		return err
	}
}

// Close disconnects, drops pending acknowledgements and closes the relays.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.acks.Stop()
	c.cancel()
	return c.fanout.Close()
}

// BeginTyping tells the server the current user is typing in channelID.
func (c *Client) BeginTyping(channelID string) error {
	return c.conn.Send(protocol.BeginTyping(channelID))
}

// EndTyping tells the server the current user stopped typing.
func (c *Client) EndTyping(channelID string) error {
	return c.conn.Send(protocol.EndTyping(channelID))
}

// Permission computes the current user's permissions against a server or
// channel.
func (c *Client) Permission(target any) (permission.BitField, error) {
	self, ok := c.cache.Self()
	if !ok {
		return permission.BitField{}, errs.ErrNotReady
	}
	return c.resolver.Compute(self, target)
}

// PermissionOf computes actor's permissions against a server or channel.
func (c *Client) PermissionOf(actor *model.User, target any) (permission.BitField, error) {
	return c.resolver.Compute(actor, target)
}

// IsUnread reports whether ch has messages past the read pointer. Saved
// messages, voice channels and muted channels are never unread.
func (c *Client) IsUnread(ch model.Channel) bool {
	last := ch.Base().LastMessageID
	if last == nil {
		return false
	}
	switch ch.Kind() {
	case model.KindSavedMessages, model.KindVoiceChannel:
		return false
	}
	if c.channelIsMuted(ch) {
		return false
	}
	unread, _ := c.cache.Unreads.Get(ch.Base().ID)
	return unread.Behind(*last)
}

// Mentions returns the unread mentions of the current user in ch.
func (c *Client) Mentions(ch model.Channel) []string {
	switch ch.Kind() {
	case model.KindSavedMessages, model.KindVoiceChannel:
		return nil
	}
	unread, ok := c.cache.Unreads.Get(ch.Base().ID)
	if !ok {
		return nil
	}
	return slices.Clone(unread.MentionIDs)
}

// Status summarizes the client for health reporting.
type Status struct {
	Session   SessionState   `json:"session"`
	State     gateway.State  `json:"state"`
	LatencyMS int64          `json:"latency_ms"`
	Failures  int            `json:"connection_failures"`
	UserID    string         `json:"user_id,omitempty"`
	Caches    map[string]int `json:"caches"`
}

func (c *Client) Status() Status {
	st := Status{
		Session:   c.SessionState(),
		State:     c.conn.State(),
		LatencyMS: -1,
		Failures:  c.failures.Failures(),
		Caches:    c.cache.Sizes(),
	}
	if l := c.conn.Latency(); l >= 0 {
		st.LatencyMS = l.Milliseconds()
	}
	if self, ok := c.cache.Self(); ok {
		st.UserID = self.ID
	}
	return st
}

func (c *Client) wsURL() string {
	if c.cfg.WSURL != "" {
		return c.cfg.WSURL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root != nil && c.root.WS != "" {
		return c.root.WS
	}
	return DefaultWSURL
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// handleEvent runs on the connection's read goroutine, so the next frame is
// not read before this one, including its REST fetches, is applied.
func (c *Client) handleEvent(ev protocol.Event) {
	if err := c.reconciler.Apply(c.ctx, ev); err != nil {
		c.log.Warn("Event not fully applied",
			zap.String("type", string(ev.Type())),
			zap.Error(err),
		)
	}
}

func (c *Client) markReady() {
	c.mu.Lock()
	c.state = SessionReady
	c.mu.Unlock()
}

func (c *Client) handleState(state gateway.State) {
	switch state {
	case gateway.Connected:
		c.failures.Reset()
		c.resetServerSync()
	case gateway.Connecting:
		c.mu.Lock()
		c.state = SessionConnecting
		c.mu.Unlock()
	case gateway.Disconnected:
		c.scheduleReconnect()
	}
	c.bus.Publish(events.StateChanged{State: string(state)})
}

// scheduleReconnect arms the next attempt after RetryDelay(failures).
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = SessionOffline
	if c.closed || !c.wantConnected || !c.cfg.AutoReconnect {
		return
	}
	failures := c.failures.Fail()
	delay := c.retryDelay(failures)
	c.log.Info("Reconnecting",
		zap.Int("failures", failures),
		zap.Duration("delay", delay),
	)

	c.stopReconnectLocked()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		current := c.reconnectTimer == timer
		if current {
			c.reconnectTimer = nil
		}
		c.mu.Unlock()
		if !current {
			return
		}
		if err := c.Connect(c.ctx); err != nil {
			c.log.Warn("Reconnect failed", zap.Error(err))
		}
	})
	c.reconnectTimer = timer
}

func (c *Client) handleFatal(err error) {
	c.mu.Lock()
	c.wantConnected = false
	c.stopReconnectLocked()
	c.mu.Unlock()

	c.bus.Publish(events.ConnectionError{Err: err})
	select {
	case c.fatal <- err:
	default:
	}
}

// resetServerSync marks every server's member list as stale.
func (c *Client) resetServerSync() {
	for _, server := range c.cache.Servers.Values() {
		if !server.MembersSynced {
			continue
		}
		next := server.Clone()
		next.MembersSynced = false
		c.cache.Servers.Set(next.ID, next)
	}
}
