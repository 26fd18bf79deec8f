// Package reconcile applies server events to the entity cache and turns them
// into notifications.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

// API is the part of the REST client the reconciler awaits while handling
// events.
type API interface {
	FetchUser(ctx context.Context, id string) (*model.UserData, error)
	SyncUnreads(ctx context.Context) ([]model.UnreadData, error)
}

// Options configures a Reconciler.
type Options struct {
	// SyncUnreads fetches the unread state after every Ready.
	SyncUnreads bool
	// OnReady runs once the Ready snapshot is stored, before the ready
	// notification is published.
	OnReady func()
	Logger  *zap.Logger
}

// Reconciler owns every cache mutation driven by the event stream. Events
// must be applied one at a time, in delivery order.
type Reconciler struct {
	cache       *model.Cache
	bus         *events.Bus
	api         API
	syncUnreads bool
	onReady     func()
	logger      *zap.Logger

	now func() time.Time
}

func New(cache *model.Cache, bus *events.Bus, api API, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cache:       cache,
		bus:         bus,
		api:         api,
		syncUnreads: opts.SyncUnreads,
		onReady:     opts.OnReady,
		logger:      logger,
		now:         time.Now,
	}
}

// Apply mutates the cache for ev and publishes the resulting notifications.
// Bulk envelopes are applied item by item so subscribers observe each
// contained event right after its own mutation.
func (r *Reconciler) Apply(ctx context.Context, ev protocol.Event) error {
	if bulk, ok := ev.(*protocol.BulkEvent); ok {
		var errList []error
		for _, item := range bulk.Events {
			if err := r.Apply(ctx, item); err != nil {
				errList = append(errList, err)
			}
		}
		return errors.Join(errList...)
	}

	notes, err := r.Mutate(ctx, ev)
	for _, n := range notes {
		r.bus.Publish(n)
	}
	return err
}

// Mutate applies ev to the cache and returns the notifications it produced
// without publishing them.
func (r *Reconciler) Mutate(ctx context.Context, ev protocol.Event) ([]events.Notification, error) {
	switch e := ev.(type) {
	case *protocol.BulkEvent:
		var (
			out     []events.Notification
			errList []error
		)
		for _, item := range e.Events {
			notes, err := r.Mutate(ctx, item)
			out = append(out, notes...)
			if err != nil {
				errList = append(errList, err)
			}
		}
		return out, errors.Join(errList...)

	case *protocol.ReadyEvent:
		return r.ready(ctx, e)

	case *protocol.MessageEvent:
		return r.message(e), nil
	case *protocol.MessageUpdateEvent:
		return r.messageUpdate(e), nil
	case *protocol.MessageAppendEvent:
		return r.messageAppend(e), nil
	case *protocol.MessageDeleteEvent:
		return r.messageDelete(e), nil
	case *protocol.BulkMessageDeleteEvent:
		return r.bulkMessageDelete(e), nil
	case *protocol.MessageReactEvent:
		return r.messageReact(e), nil
	case *protocol.MessageUnreactEvent:
		return r.messageUnreact(e), nil
	case *protocol.MessageRemoveReactionEvent:
		return r.messageRemoveReaction(e), nil

	case *protocol.ChannelCreateEvent:
		return r.channelCreate(e)
	case *protocol.ChannelUpdateEvent:
		return r.channelUpdate(e), nil
	case *protocol.ChannelDeleteEvent:
		return r.channelDelete(e), nil
	case *protocol.ChannelGroupJoinEvent:
		return r.channelGroupJoin(ctx, e), nil
	case *protocol.ChannelGroupLeaveEvent:
		return r.channelGroupLeave(e), nil
	case *protocol.ChannelStartTypingEvent:
		return r.channelStartTyping(e), nil
	case *protocol.ChannelStopTypingEvent:
		return r.channelStopTyping(e), nil
	case *protocol.ChannelAckEvent:
		return r.channelAck(e), nil

	case *protocol.ServerCreateEvent:
		return r.serverCreate(e)
	case *protocol.ServerUpdateEvent:
		return r.serverUpdate(e), nil
	case *protocol.ServerDeleteEvent:
		return r.serverDelete(e), nil
	case *protocol.ServerRoleUpdateEvent:
		return r.serverRoleUpdate(e), nil
	case *protocol.ServerRoleDeleteEvent:
		return r.serverRoleDelete(e), nil
	case *protocol.ServerMemberJoinEvent:
		return r.serverMemberJoin(ctx, e), nil
	case *protocol.ServerMemberUpdateEvent:
		return r.serverMemberUpdate(e), nil
	case *protocol.ServerMemberLeaveEvent:
		return r.serverMemberLeave(ctx, e)

	case *protocol.UserUpdateEvent:
		return r.userUpdate(e), nil
	case *protocol.UserRelationshipEvent:
		return r.userRelationship(ctx, e)
	case *protocol.UserPresenceEvent:
		return r.userPresence(ctx, e)
	case *protocol.UserSettingsUpdateEvent:
		return []events.Notification{events.UserSettingsUpdate{UserID: e.ID, Update: e.Update}}, nil
	case *protocol.UserPlatformWipeEvent:
		return r.userPlatformWipe(ctx, e)

	case *protocol.EmojiCreateEvent:
		return r.emojiCreate(e), nil
	case *protocol.EmojiDeleteEvent:
		return r.emojiDelete(e), nil

	case *protocol.AuthEvent:
		r.logger.Warn("Auth event ignored",
			zap.String("event_type", e.EventType),
			zap.String("user_id", e.UserID),
		)
		return nil, fmt.Errorf("auth event %s: %w", e.EventType, errs.ErrNotImplemented)

	case *protocol.ErrorEvent, *protocol.AuthenticatedEvent, *protocol.PingEvent, *protocol.PongEvent:
		// Connection control, handled by the gateway.
		return nil, nil

	case *protocol.UnknownEvent:
		r.logger.Debug("Unknown event ignored", zap.String("type", string(e.Tag)))
		return nil, nil
	}

	return nil, fmt.Errorf("unhandled event %T", ev)
}

// ready stores the snapshot. Users come first so the current user is known,
// then servers before the members and channels that point at them.
func (r *Reconciler) ready(ctx context.Context, e *protocol.ReadyEvent) ([]events.Notification, error) {
	for _, data := range e.Users {
		r.cache.Users.Set(data.ID, model.NewUser(data))
	}

	for _, data := range e.Servers {
		r.cache.Servers.Set(data.ID, model.NewServer(data))
	}

	for _, data := range e.Members {
		if server, ok := r.cache.Server(data.ID.Server); ok {
			server.Members.Set(data.ID.User, model.NewMember(data))
		}
	}

	for _, data := range e.Channels {
		ch, err := model.NewChannel(data)
		if err != nil {
			r.logger.Warn("Skipping channel in Ready", zap.String("channel_id", data.ID), zap.Error(err))
			continue
		}
		r.cache.Channels.Set(data.ID, ch)
	}

	for _, data := range e.Emojis {
		r.cache.Emojis.Set(data.ID, model.NewEmoji(data))
	}

	var syncErr error
	if r.syncUnreads {
		if err := r.SyncUnreads(ctx); err != nil {
			r.logger.Warn("Failed to sync unreads", zap.Error(err))
			syncErr = err
		}
	}

	if r.onReady != nil {
		r.onReady()
	}
	return []events.Notification{events.Ready{}}, syncErr
}

// SyncUnreads replaces the unread state with the server's copy.
func (r *Reconciler) SyncUnreads(ctx context.Context) error {
	if r.api == nil {
		return fmt.Errorf("failed to sync unreads: %w", errs.ErrNoSession)
	}
	unreads, err := r.api.SyncUnreads(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync unreads: %w", err)
	}

	r.cache.Unreads.Clear()
	for _, data := range unreads {
		r.cache.Unreads.Set(data.ID.Channel, model.NewChannelUnread(data))
	}
	return nil
}

// fetchUser refreshes a user through the API. When the request fails the
// cached copy, if any, is returned instead.
func (r *Reconciler) fetchUser(ctx context.Context, id string) *model.User {
	if r.api != nil {
		data, err := r.api.FetchUser(ctx, id)
		if err == nil {
			user := model.NewUser(*data)
			r.cache.Users.Set(user.ID, user)
			return user
		}
		r.logger.Warn("Failed to fetch user", zap.String("user_id", id), zap.Error(err))
	}
	user, _ := r.cache.User(id)
	return user
}

func (r *Reconciler) selfID() string {
	if self, ok := r.cache.Self(); ok {
		return self.ID
	}
	return ""
}
