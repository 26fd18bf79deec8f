package reconcile

import (
	"context"
	"fmt"

	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

func (r *Reconciler) channelCreate(e *protocol.ChannelCreateEvent) ([]events.Notification, error) {
	if r.cache.Channels.Has(e.ID) {
		return nil, nil
	}
	ch, err := model.NewChannel(e.ChannelData)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel %s: %w", e.ID, err)
	}
	ch, inserted := r.cache.Channels.SetIfAbsent(e.ID, ch)
	if !inserted {
		return nil, nil
	}

	if sc := model.ServerChannelOf(ch); sc != nil {
		if server, ok := r.cache.Server(sc.ServerID); ok && !server.HasChannel(e.ID) {
			next := server.Clone()
			next.AddChannel(e.ID)
			r.cache.Servers.Set(next.ID, next)
		}
	}

	return []events.Notification{events.ChannelCreate{Channel: ch}}, nil
}

func (r *Reconciler) channelUpdate(e *protocol.ChannelUpdateEvent) []events.Notification {
	prev, ok := r.cache.Channel(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Update(e.Data, e.Clear...)
	r.cache.Channels.Set(e.ID, next)

	return []events.Notification{events.ChannelUpdate{Channel: next, Previous: prev}}
}

func (r *Reconciler) channelDelete(e *protocol.ChannelDeleteEvent) []events.Notification {
	ch, ok := r.cache.Channels.Delete(e.ID)
	if !ok {
		return nil
	}

	if sc := model.ServerChannelOf(ch); sc != nil {
		if server, ok := r.cache.Server(sc.ServerID); ok && server.HasChannel(e.ID) {
			next := server.Clone()
			next.RemoveChannel(e.ID)
			r.cache.Servers.Set(next.ID, next)
		}
	}

	return []events.Notification{events.ChannelDelete{Channel: ch}}
}

// channelGroupJoin adds the recipient, then awaits the user record so the
// notification carries it.
func (r *Reconciler) channelGroupJoin(ctx context.Context, e *protocol.ChannelGroupJoinEvent) []events.Notification {
	ch, ok := r.cache.Channel(e.ID)
	if !ok {
		return nil
	}
	group, ok := ch.(*model.Group)
	if !ok {
		return nil
	}
	if !group.HasRecipient(e.User) {
		group = group.Clone().(*model.Group)
		group.AddRecipient(e.User)
		r.cache.Channels.Set(e.ID, group)
	}

	user := r.fetchUser(ctx, e.User)
	return []events.Notification{events.ChannelGroupJoin{Channel: group, User: user}}
}

func (r *Reconciler) channelGroupLeave(e *protocol.ChannelGroupLeaveEvent) []events.Notification {
	ch, ok := r.cache.Channel(e.ID)
	if !ok {
		return nil
	}
	group, ok := ch.(*model.Group)
	if !ok {
		return nil
	}
	if group.HasRecipient(e.User) {
		group = group.Clone().(*model.Group)
		group.RemoveRecipient(e.User)
		r.cache.Channels.Set(e.ID, group)
	}

	user, _ := r.cache.User(e.User)
	return []events.Notification{events.ChannelGroupLeave{Channel: group, UserID: e.User, User: user}}
}

// channelStartTyping notifies only for cached users.
func (r *Reconciler) channelStartTyping(e *protocol.ChannelStartTypingEvent) []events.Notification {
	ch, ok := r.cache.Channel(e.ID)
	if !ok {
		return nil
	}
	if !containsID(ch.Base().TypingIDs, e.User) {
		ch = ch.Clone()
		ch.Base().StartTyping(e.User)
		r.cache.Channels.Set(e.ID, ch)
	}

	user, ok := r.cache.User(e.User)
	if !ok {
		return nil
	}
	return []events.Notification{events.ChannelStartTyping{Channel: ch, User: user}}
}

func (r *Reconciler) channelStopTyping(e *protocol.ChannelStopTypingEvent) []events.Notification {
	ch, ok := r.cache.Channel(e.ID)
	if !ok {
		return nil
	}
	if containsID(ch.Base().TypingIDs, e.User) {
		ch = ch.Clone()
		ch.Base().StopTyping(e.User)
		r.cache.Channels.Set(e.ID, ch)
	}

	user, _ := r.cache.User(e.User)
	return []events.Notification{events.ChannelStopTyping{Channel: ch, UserID: e.User, User: user}}
}

func (r *Reconciler) channelAck(e *protocol.ChannelAckEvent) []events.Notification {
	ch, ok := r.cache.Channel(e.ID)
	if !ok {
		return nil
	}
	return []events.Notification{events.ChannelAcknowledged{Channel: ch, MessageID: e.MessageID}}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
