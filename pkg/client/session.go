package client

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/internal/rest"
	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Session Session
	// Onboarding is set when the account still has to pick a username.
	Onboarding bool
}

// fetchConfiguration loads the API root once per client.
func (c *Client) fetchConfiguration(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.root != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	root, err := c.api.Root(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch configuration: %w", err)
	}
	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	return nil
}

// Configuration returns the API root fetched during login, if any.
func (c *Client) Configuration() *rest.RootConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// LoginBot authenticates with a bot token and connects.
func (c *Client) LoginBot(ctx context.Context, token string) error {
	if err := c.fetchConfiguration(ctx); err != nil {
		return err
	}
	c.UseExistingSession(Session{Token: token, Bot: true})
	return c.Connect(ctx)
}

// Login creates a user session from credentials and connects. MFA and
// disabled accounts are reported as *errs.LoginError; any other unexpected
// result is an error wrapping errs.ErrUnknownLoginResult.
func (c *Client) Login(ctx context.Context, details rest.LoginData) (*LoginResult, error) {
	if err := c.fetchConfiguration(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.Login(ctx, details)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	switch resp.Result {
	case rest.LoginSuccess:
	case rest.LoginMFA:
		return nil, &errs.LoginError{Code: errs.LoginMFANotImplemented}
	case rest.LoginDisabled:
		return nil, &errs.LoginError{Code: errs.LoginAccountDisabled, UserID: resp.UserID}
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownLoginResult, resp.Result)
	}

	session := Session{
		ID:     resp.ID,
		UserID: resp.UserID,
		Token:  resp.Token,
		Name:   resp.Name,
	}
	c.UseExistingSession(session)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	onboarding, err := c.api.OnboardHello(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check onboarding: %w", err)
	}
	return &LoginResult{Session: session, Onboarding: onboarding}, nil
}

// UseExistingSession authenticates further requests with s without
// connecting.
func (c *Client) UseExistingSession(s Session) {
	c.mu.Lock()
	c.session = &s
	c.mu.Unlock()

	if s.Bot {
		c.api.SetBotToken(s.Token)
	} else {
		c.api.SetSessionToken(s.Token)
	}
}

// Session returns a copy of the current session.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Logout disconnects and forgets the session. With request set the server
// is asked to revoke it first, which bots should not do.
func (c *Client) Logout(ctx context.Context, request bool) error {
	if request {
		if err := c.api.Logout(ctx); err != nil {
			return fmt.Errorf("failed to log out: %w", err)
		}
	}
	c.Disconnect()

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.api.ClearAuth()

	c.bus.Publish(events.Logout{})
	return nil
}

// FetchUser refreshes the current user from the API.
func (c *Client) FetchUser(ctx context.Context) (*model.User, error) {
	data, err := c.api.FetchSelf(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	user := model.NewUser(*data)
	c.cache.Users.Set(user.ID, user)
	return user, nil
}

// ResolveUser returns the cached user with id, fetching it when absent.
func (c *Client) ResolveUser(ctx context.Context, id string) (*model.User, error) {
	if user, ok := c.cache.User(id); ok {
		return user, nil
	}
	data, err := c.api.FetchUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	user, _ := c.cache.Users.SetIfAbsent(data.ID, model.NewUser(*data))
	return user, nil
}

// SyncUnreads replaces the local read state with the server's.
func (c *Client) SyncUnreads(ctx context.Context) error {
	return c.reconciler.SyncUnreads(ctx)
}

// AckOptions tune AckChannel.
type AckOptions struct {
	// SkipRateLimiter sends the request right away.
	SkipRateLimiter bool
	// SkipRequest only updates the local read state.
	SkipRequest bool
	// SkipNextMarking makes the next AckChannel without a message id a
	// no-op, for callers that mark a channel read by hand.
	SkipNextMarking bool
}

// AckChannel marks channelID as read up to messageID, or up to the
// channel's last message when messageID is empty. Requests for one channel
// are collapsed: one is sent 5 seconds after the last call, and at least
// one every 15 seconds under continuous calls.
func (c *Client) AckChannel(ctx context.Context, channelID, messageID string, opts AckOptions) error {
	c.mu.Lock()
	if messageID == "" && c.manuallyMarked[channelID] {
		delete(c.manuallyMarked, channelID)
		c.mu.Unlock()
		return nil
	}
	if opts.SkipNextMarking {
		c.manuallyMarked[channelID] = true
	}
	c.mu.Unlock()

	lastID := messageID
	if lastID == "" {
		if ch, ok := c.cache.Channel(channelID); ok && ch.Base().LastMessageID != nil {
			lastID = *ch.Base().LastMessageID
		}
	}
	if lastID == "" {
		lastID = newULID()
	}

	if unread, ok := c.cache.Unreads.Get(channelID); ok {
		next := unread.Clone()
		next.MarkRead(lastID)
		c.cache.Unreads.Set(channelID, next)
	}

	if opts.SkipRequest {
		return nil
	}
	if opts.SkipRateLimiter {
		c.acks.Cancel(channelID)
		return c.api.AckMessage(ctx, channelID, lastID)
	}

	c.acks.Trigger(channelID, func() {
		if err := c.api.AckMessage(c.ctx, channelID, lastID); err != nil {
			c.log.Warn("Failed to acknowledge channel",
				zap.String("channel_id", channelID),
				zap.String("message_id", lastID),
				zap.Error(err),
			)
		}
	})
	return nil
}

// newULID stands in for a message id when a channel has none yet.
func newULID() string {
	return ulid.Make().String()
}
