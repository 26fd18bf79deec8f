package reconcile

import (
	"context"
	"errors"

	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

// DeletedUsername replaces the name of users removed from the platform.
const DeletedUsername = "Deleted User"

func (r *Reconciler) userUpdate(e *protocol.UserUpdateEvent) []events.Notification {
	prev, ok := r.cache.User(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Update(e.Data, e.Clear...)
	r.cache.Users.Set(e.ID, next)

	return []events.Notification{events.UserUpdate{User: next, Previous: prev}}
}

func (r *Reconciler) userRelationship(ctx context.Context, e *protocol.UserRelationshipEvent) ([]events.Notification, error) {
	status := e.User.Relationship
	if status == "" {
		status = e.Status
	}
	return r.Mutate(ctx, &protocol.UserUpdateEvent{
		ID:   e.User.ID,
		Data: model.UserPatch{Relationship: model.Some(status)},
	})
}

func (r *Reconciler) userPresence(ctx context.Context, e *protocol.UserPresenceEvent) ([]events.Notification, error) {
	return r.Mutate(ctx, &protocol.UserUpdateEvent{
		ID:   e.ID,
		Data: model.UserPatch{Online: model.Some(e.Online)},
	})
}

// userPlatformWipe deletes every cached message of the user, then anonymizes
// the profile.
func (r *Reconciler) userPlatformWipe(ctx context.Context, e *protocol.UserPlatformWipeEvent) ([]events.Notification, error) {
	authored := r.cache.Messages.Filter(func(m *model.Message) bool { return m.AuthorID == e.UserID })
	ids := make([]string, 0, len(authored))
	for _, m := range authored {
		ids = append(ids, m.ID)
	}

	deleted, delErr := r.Mutate(ctx, &protocol.BulkMessageDeleteEvent{Channel: "0", IDs: ids})
	updated, updErr := r.Mutate(ctx, &protocol.UserUpdateEvent{
		ID: e.UserID,
		Data: model.UserPatch{
			Username:     model.Some(DeletedUsername),
			DisplayName:  model.Null[string](),
			Online:       model.Some(false),
			Flags:        model.Some(e.Flags),
			Badges:       model.Some(uint32(0)),
			Relationship: model.Some(model.RelationshipNone),
		},
		Clear: []model.UserField{
			model.UserFieldAvatar,
			model.UserFieldStatusPresence,
			model.UserFieldStatusText,
		},
	})

	return append(deleted, updated...), errors.Join(delErr, updErr)
}

func (r *Reconciler) emojiCreate(e *protocol.EmojiCreateEvent) []events.Notification {
	emoji, inserted := r.cache.Emojis.SetIfAbsent(e.ID, model.NewEmoji(e.EmojiData))
	if !inserted {
		return nil
	}
	return []events.Notification{events.EmojiCreate{Emoji: emoji}}
}

func (r *Reconciler) emojiDelete(e *protocol.EmojiDeleteEvent) []events.Notification {
	emoji, ok := r.cache.Emojis.Delete(e.ID)
	if !ok {
		return nil
	}
	return []events.Notification{events.EmojiDelete{Emoji: emoji}}
}
