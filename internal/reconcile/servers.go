package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

func (r *Reconciler) serverCreate(e *protocol.ServerCreateEvent) ([]events.Notification, error) {
	server, inserted := r.cache.Servers.SetIfAbsent(e.Server.ID, model.NewServer(e.Server))
	if !inserted {
		return nil, nil
	}

	var err error
	for _, data := range e.Channels {
		ch, chErr := model.NewChannel(data)
		if chErr != nil {
			err = fmt.Errorf("failed to create channel %s of server %s: %w", data.ID, server.ID, chErr)
			continue
		}
		r.cache.Channels.SetIfAbsent(data.ID, ch)
	}

	return []events.Notification{events.ServerCreate{Server: server}}, err
}

func (r *Reconciler) serverUpdate(e *protocol.ServerUpdateEvent) []events.Notification {
	prev, ok := r.cache.Server(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Update(e.Data, e.Clear...)
	r.cache.Servers.Set(e.ID, next)

	return []events.Notification{events.ServerUpdate{Server: next, Previous: prev}}
}

// serverDelete drops the server and every channel it lists.
func (r *Reconciler) serverDelete(e *protocol.ServerDeleteEvent) []events.Notification {
	server, ok := r.cache.RemoveServer(e.ID)
	if !ok {
		return nil
	}
	return []events.Notification{events.ServerDelete{Server: server}}
}

// serverRoleUpdate also creates roles, which the server announces as an
// update of an unknown role id.
func (r *Reconciler) serverRoleUpdate(e *protocol.ServerRoleUpdateEvent) []events.Notification {
	prev, ok := r.cache.Server(e.ID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	role, ok := next.Role(e.RoleID)
	if !ok {
		role = model.NewRole(e.ID, e.RoleID, model.RoleData{})
		next.Roles[e.RoleID] = role
	}
	role.Update(e.Data)
	r.cache.Servers.Set(e.ID, next)

	return []events.Notification{events.ServerRoleUpdate{Server: next, RoleID: e.RoleID, Role: role}}
}

func (r *Reconciler) serverRoleDelete(e *protocol.ServerRoleDeleteEvent) []events.Notification {
	prev, ok := r.cache.Server(e.ID)
	if !ok {
		return nil
	}
	role, ok := prev.Role(e.RoleID)
	if !ok {
		return nil
	}
	next := prev.Clone()
	delete(next.Roles, e.RoleID)
	r.cache.Servers.Set(e.ID, next)

	return []events.Notification{events.ServerRoleDelete{Server: next, RoleID: e.RoleID, Role: role}}
}

// serverMemberJoin awaits the user record before the member is announced.
func (r *Reconciler) serverMemberJoin(ctx context.Context, e *protocol.ServerMemberJoinEvent) []events.Notification {
	server, ok := r.cache.Server(e.ID)
	if !ok || server.Members.Has(e.User) {
		return nil
	}

	if r.fetchUser(ctx, e.User) == nil {
		r.logger.Warn("Member joined without a known user",
			zap.String("server_id", e.ID),
			zap.String("user_id", e.User),
		)
	}

	member, inserted := server.Members.SetIfAbsent(e.User, model.NewMember(model.MemberData{
		ID:       model.MemberKey{Server: e.ID, User: e.User},
		JoinedAt: r.now().UTC(),
	}))
	if !inserted {
		return nil
	}
	return []events.Notification{events.ServerMemberJoin{Member: member}}
}

func (r *Reconciler) serverMemberUpdate(e *protocol.ServerMemberUpdateEvent) []events.Notification {
	server, ok := r.cache.Server(e.ID.Server)
	if !ok {
		return nil
	}
	prev, ok := server.Members.Get(e.ID.User)
	if !ok {
		return nil
	}
	next := prev.Clone()
	next.Update(e.Data, e.Clear...)
	server.Members.Set(e.ID.User, next)

	return []events.Notification{events.ServerMemberUpdate{Member: next, Previous: prev}}
}

// serverMemberLeave treats the current user leaving as the server going away.
func (r *Reconciler) serverMemberLeave(ctx context.Context, e *protocol.ServerMemberLeaveEvent) ([]events.Notification, error) {
	if self := r.selfID(); self != "" && e.User == self {
		return r.Mutate(ctx, &protocol.ServerDeleteEvent{ID: e.ID})
	}

	server, ok := r.cache.Server(e.ID)
	if !ok {
		return nil, nil
	}
	member, ok := server.Members.Delete(e.User)
	if !ok {
		return nil, nil
	}
	return []events.Notification{events.ServerMemberLeave{Member: member}}, nil
}
