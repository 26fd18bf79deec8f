// Package resolver computes effective permissions by walking the cached
// entity graph: server defaults, role overrides by priority, channel
// defaults, channel role overrides and finally the timeout mask.
package resolver

import (
	"fmt"
	"time"

	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/permission"
)

// Graph is the read-only view of the cache the resolver needs.
type Graph interface {
	Server(id string) (*model.Server, bool)
	Member(serverID, userID string) (*model.Member, bool)
	User(id string) (*model.User, bool)
	Self() (*model.User, bool)
	SharesSpace(userID string) bool
}

// Resolver is safe for concurrent use as long as Graph is.
type Resolver struct {
	Graph Graph
	// Now is used for timeout checks; time.Now when nil.
	Now func() time.Time
}

func New(g Graph) *Resolver {
	return &Resolver{Graph: g, Now: time.Now}
}

func (r *Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

var grantAll = permission.NewBitField(uint64(permission.GrantAllSafe))

// Compute resolves actor's permissions against target, which must be a
// *model.Server or a model.Channel.
func (r *Resolver) Compute(actor *model.User, target any) (permission.BitField, error) {
	switch t := target.(type) {
	case *model.Server:
		return r.ForServer(actor, t)
	case model.Channel:
		return r.ForChannel(actor, t)
	}
	return permission.BitField{}, fmt.Errorf("cannot compute permissions against %T", target)
}

// ForServer computes actor's permissions in server.
func (r *Resolver) ForServer(actor *model.User, server *model.Server) (permission.BitField, error) {
	if actor == nil {
		return permission.BitField{}, &errs.NotFoundError{Kind: "user", ID: ""}
	}
	if server == nil {
		return permission.BitField{}, &errs.NotFoundError{Kind: "server", ID: ""}
	}
	if actor.Privileged || actor.ID == server.OwnerID {
		return grantAll, nil
	}
	member, ok := server.Members.Get(actor.ID)
	if !ok {
		return permission.BitField{}, nil
	}

	perm := server.DefaultPermissions
	for _, role := range member.OrderedRoles(server) {
		perm = role.Permissions.Apply(perm)
	}
	return r.timeoutMask(member, perm), nil
}

// ForChannel computes actor's permissions in channel.
func (r *Resolver) ForChannel(actor *model.User, channel model.Channel) (permission.BitField, error) {
	if actor == nil {
		return permission.BitField{}, &errs.NotFoundError{Kind: "user", ID: ""}
	}
	if actor.Privileged {
		return grantAll, nil
	}

	switch ch := channel.(type) {
	case *model.SavedMessages:
		return grantAll, nil
	case *model.DirectMessage:
		return r.forDirectMessage(actor, ch), nil
	case *model.Group:
		if ch.OwnerID == actor.ID {
			return grantAll, nil
		}
		if ch.Permissions != nil {
			return permission.NewBitField(*ch.Permissions), nil
		}
		return permission.NewBitField(uint64(permission.DefaultPermissionDirectMessage)), nil
	case *model.TextChannel:
		return r.forServerChannel(actor, &ch.ServerChannel)
	case *model.VoiceChannel:
		return r.forServerChannel(actor, &ch.ServerChannel)
	}
	return permission.BitField{}, fmt.Errorf("unknown channel type %T", channel)
}

func (r *Resolver) forDirectMessage(actor *model.User, ch *model.DirectMessage) permission.BitField {
	perm := permission.DefaultPermissionViewOnly
	if recipient, ok := r.Graph.User(ch.RecipientID(actor.ID)); ok {
		if r.UserPermission(recipient).Has(permission.UserSendMessage) {
			perm = permission.DefaultPermissionDirectMessage
		}
	}
	return permission.NewBitField(uint64(perm))
}

func (r *Resolver) forServerChannel(actor *model.User, ch *model.ServerChannel) (permission.BitField, error) {
	server, ok := r.Graph.Server(ch.ServerID)
	if !ok {
		return permission.BitField{}, &errs.NotFoundError{Kind: "server", ID: ch.ServerID}
	}
	if actor.ID == server.OwnerID {
		return grantAll, nil
	}
	member, ok := server.Members.Get(actor.ID)
	if !ok {
		return permission.BitField{}, nil
	}

	perm, err := r.ForServer(actor, server)
	if err != nil {
		return permission.BitField{}, err
	}
	perm = ch.DefaultPermissions.Apply(perm)
	for _, role := range member.OrderedRoles(server) {
		perm = ch.RoleOverride(role.ID).Apply(perm)
	}
	return r.timeoutMask(member, perm), nil
}

func (r *Resolver) timeoutMask(member *model.Member, perm permission.BitField) permission.BitField {
	if member.TimedOut(r.now()) {
		return perm.And(permission.AllowInTimeout)
	}
	return perm
}

// UserPermission returns what the current user may do towards user, derived
// from the relationship and whether they share a group, DM or server.
func (r *Resolver) UserPermission(user *model.User) permission.UserPermission {
	var perm permission.UserPermission
	switch user.Relationship {
	case model.RelationshipFriend, model.RelationshipUser:
		return permission.U32Max
	case model.RelationshipBlocked, model.RelationshipBlockedOther:
		return permission.UserAccess
	case model.RelationshipIncoming, model.RelationshipOutgoing:
		perm = permission.UserAccess
	}

	if r.Graph.SharesSpace(user.ID) {
		if self, ok := r.Graph.Self(); (ok && self.IsBot()) || user.IsBot() {
			perm |= permission.UserSendMessage
		}
		perm |= permission.UserAccess | permission.UserViewProfile
	}
	return perm
}
