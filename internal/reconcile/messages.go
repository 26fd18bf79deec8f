package reconcile

import (
	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

func (r *Reconciler) message(e *protocol.MessageEvent) []events.Notification {
	if r.cache.Messages.Has(e.ID) {
		return nil
	}

	if e.Member != nil {
		if server, ok := r.cache.Server(e.Member.ID.Server); ok {
			server.Members.SetIfAbsent(e.Member.ID.User, model.NewMember(*e.Member))
		}
	}
	if e.User != nil {
		r.cache.Users.Set(e.User.ID, model.NewUser(*e.User))
	}

	msg, inserted := r.cache.Messages.SetIfAbsent(e.ID, model.NewMessage(e.MessageData))
	if !inserted {
		return nil
	}

	if ch, ok := r.cache.Channel(msg.ChannelID); ok {
		next := ch.Clone()
		id := msg.ID
		next.Base().LastMessageID = &id
		r.cache.Channels.Set(msg.ChannelID, next)
	}

	return []events.Notification{events.MessageCreate{Message: msg}}
}

func (r *Reconciler) messageUpdate(e *protocol.MessageUpdateEvent) []events.Notification {
	prev, ok := r.cache.Messages.Get(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Update(e.Data, r.now())
	r.cache.Messages.Set(e.ID, next)

	return []events.Notification{events.MessageUpdate{Message: next, Previous: prev}}
}

func (r *Reconciler) messageAppend(e *protocol.MessageAppendEvent) []events.Notification {
	prev, ok := r.cache.Messages.Get(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	if len(e.Append.Embeds) > 0 {
		next.AppendEmbeds(e.Append.Embeds...)
	}
	r.cache.Messages.Set(e.ID, next)

	return []events.Notification{events.MessageUpdate{Message: next, Previous: prev}}
}

func (r *Reconciler) messageDelete(e *protocol.MessageDeleteEvent) []events.Notification {
	msg, ok := r.cache.Messages.Delete(e.ID)
	if !ok {
		return nil
	}
	return []events.Notification{events.MessageDelete{Message: msg}}
}

// bulkMessageDelete reports only the ids that were cached.
func (r *Reconciler) bulkMessageDelete(e *protocol.BulkMessageDeleteEvent) []events.Notification {
	removed := make([]*model.Message, 0, len(e.IDs))
	for _, id := range e.IDs {
		if msg, ok := r.cache.Messages.Delete(id); ok {
			removed = append(removed, msg)
		}
	}

	n := events.MessageDeleteBulk{ChannelID: e.Channel, Messages: removed}
	if ch, ok := r.cache.Channel(e.Channel); ok {
		n.Channel = ch
	}
	return []events.Notification{n}
}

func (r *Reconciler) messageReact(e *protocol.MessageReactEvent) []events.Notification {
	prev, ok := r.cache.Messages.Get(e.ID)
	if !ok || prev.Reactions.Has(e.EmojiID, e.UserID) {
		return nil
	}
	next := prev.Clone()
	next.Reactions.Add(e.EmojiID, e.UserID)
	r.cache.Messages.Set(e.ID, next)

	return []events.Notification{events.ReactionAdd{Message: next, UserID: e.UserID, EmojiID: e.EmojiID}}
}

func (r *Reconciler) messageUnreact(e *protocol.MessageUnreactEvent) []events.Notification {
	prev, ok := r.cache.Messages.Get(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Reactions.Remove(e.EmojiID, e.UserID)
	r.cache.Messages.Set(e.ID, next)

	return []events.Notification{events.ReactionRemove{Message: next, UserID: e.UserID, EmojiID: e.EmojiID}}
}

func (r *Reconciler) messageRemoveReaction(e *protocol.MessageRemoveReactionEvent) []events.Notification {
	prev, ok := r.cache.Messages.Get(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Reactions.RemoveEmoji(e.EmojiID)
	r.cache.Messages.Set(e.ID, next)

	return []events.Notification{events.ReactionRemoveEmoji{Message: next, EmojiID: e.EmojiID}}
}
