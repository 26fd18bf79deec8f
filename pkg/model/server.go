package model

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/Gopher0727/chatsync/pkg/cache"
	"github.com/Gopher0727/chatsync/pkg/permission"
)

// RoleData is the wire shape of a role.
type RoleData struct {
	Name        string                   `json:"name"`
	Permissions permission.OverrideField `json:"permissions"`
	Colour      *string                  `json:"colour,omitempty"`
	Hoist       bool                     `json:"hoist,omitempty"`
	Rank        *int64                   `json:"rank,omitempty"`
}

// RolePatch is a partial role update.
type RolePatch struct {
	Name        Nullable[string]                   `json:"name,omitzero"`
	Permissions Nullable[permission.OverrideField] `json:"permissions,omitzero"`
	Colour      Nullable[string]                   `json:"colour,omitzero"`
	Hoist       Nullable[bool]                     `json:"hoist,omitzero"`
	Rank        Nullable[int64]                    `json:"rank,omitzero"`
}

// Role belongs to exactly one server. A nil Rank sorts below every ranked role.
type Role struct {
	ID          string
	ServerID    string
	Name        string
	Colour      *string
	Hoist       bool
	Rank        *int64
	Permissions *permission.Override
}

func NewRole(serverID, id string, data RoleData) *Role {
	return &Role{
		ID:          id,
		ServerID:    serverID,
		Name:        data.Name,
		Colour:      clonePtr(data.Colour),
		Hoist:       data.Hoist,
		Rank:        clonePtr(data.Rank),
		Permissions: permission.NewOverride(id, data.Permissions),
	}
}

// RankValue returns the numeric rank, with an absent rank treated as +Inf.
func (r *Role) RankValue() float64 {
	if r.Rank == nil {
		return math.Inf(1)
	}
	return float64(*r.Rank)
}

func (r *Role) Clone() *Role {
	c := *r
	c.Colour = clonePtr(r.Colour)
	c.Rank = clonePtr(r.Rank)
	c.Permissions = r.Permissions.Clone()
	return &c
}

func (r *Role) Update(p RolePatch) {
	if p.Name.Valid && p.Name.Value != "" {
		r.Name = p.Name.Value
	}
	if p.Colour.Present {
		r.Colour = p.Colour.Ptr()
	}
	if p.Hoist.Present {
		r.Hoist = p.Hoist.Value
	}
	if p.Rank.Present {
		r.Rank = p.Rank.Ptr()
	}
	if p.Permissions.Valid {
		r.Permissions = permission.NewOverride(r.ID, p.Permissions.Value)
	}
}

// SortRolesByPriority orders roles from lowest priority to highest, i.e. by
// rank descending with unranked roles first. Ties fall back to id order so the
// result is deterministic.
func SortRolesByPriority(roles []*Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		ri, rj := roles[i].RankValue(), roles[j].RankValue()
		if ri != rj {
			return ri > rj
		}
		return roles[i].ID < roles[j].ID
	})
}

type Category struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Channels []string `json:"channels"`
}

// ServerData is the wire shape of a server.
type ServerData struct {
	ID                 string              `json:"_id"`
	Owner              string              `json:"owner"`
	Name               string              `json:"name"`
	Description        *string             `json:"description,omitempty"`
	Channels           []string            `json:"channels"`
	Categories         []Category          `json:"categories,omitempty"`
	SystemMessages     json.RawMessage     `json:"system_messages,omitempty"`
	Roles              map[string]RoleData `json:"roles,omitempty"`
	DefaultPermissions permission.BitField `json:"default_permissions"`
	Icon               File                `json:"icon,omitempty"`
	Banner             File                `json:"banner,omitempty"`
	Flags              uint32              `json:"flags,omitempty"`
	NSFW               bool                `json:"nsfw,omitempty"`
	Discoverable       bool                `json:"discoverable,omitempty"`
}

// ServerPatch is a partial server update.
type ServerPatch struct {
	Owner              Nullable[string]              `json:"owner,omitzero"`
	Name               Nullable[string]              `json:"name,omitzero"`
	Description        Nullable[string]              `json:"description,omitzero"`
	Channels           Nullable[[]string]            `json:"channels,omitzero"`
	Categories         Nullable[[]Category]          `json:"categories,omitzero"`
	SystemMessages     Nullable[json.RawMessage]     `json:"system_messages,omitzero"`
	DefaultPermissions Nullable[permission.BitField] `json:"default_permissions,omitzero"`
	Icon               Nullable[File]                `json:"icon,omitzero"`
	Banner             Nullable[File]                `json:"banner,omitzero"`
	Flags              Nullable[uint32]              `json:"flags,omitzero"`
	NSFW               Nullable[bool]                `json:"nsfw,omitzero"`
	Discoverable       Nullable[bool]                `json:"discoverable,omitzero"`
}

// ServerField names a server property that can be cleared.
type ServerField string

const (
	ServerFieldDescription    ServerField = "Description"
	ServerFieldCategories     ServerField = "Categories"
	ServerFieldSystemMessages ServerField = "SystemMessages"
	ServerFieldIcon           ServerField = "Icon"
	ServerFieldBanner         ServerField = "Banner"
)

// Server owns its roles, members and categories. Channels are referenced by
// id only and resolved through the channel cache.
type Server struct {
	ID                 string
	OwnerID            string
	Name               string
	Description        *string
	ChannelIDs         []string
	Categories         []Category
	SystemMessages     json.RawMessage
	Roles              map[string]*Role
	DefaultPermissions permission.BitField
	Icon               File
	Banner             File
	Flags              uint32
	NSFW               bool
	Discoverable       bool

	Members *cache.Store[string, *Member]

	// MembersSynced is reset on every reconnect.
	MembersSynced bool
}

func NewServer(data ServerData) *Server {
	s := &Server{
		ID:                 data.ID,
		OwnerID:            data.Owner,
		Name:               data.Name,
		Description:        clonePtr(data.Description),
		ChannelIDs:         cloneSlice(data.Channels),
		Categories:         cloneCategories(data.Categories),
		SystemMessages:     cloneSlice(data.SystemMessages),
		Roles:              make(map[string]*Role, len(data.Roles)),
		DefaultPermissions: data.DefaultPermissions,
		Icon:               data.Icon,
		Banner:             data.Banner,
		Flags:              data.Flags,
		NSFW:               data.NSFW,
		Discoverable:       data.Discoverable,
		Members:            cache.NewStore[string, *Member](),
	}
	for id, role := range data.Roles {
		s.Roles[id] = NewRole(data.ID, id, role)
	}
	return s
}

func cloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	out := make([]Category, len(in))
	for i, c := range in {
		out[i] = Category{ID: c.ID, Title: c.Title, Channels: cloneSlice(c.Channels)}
	}
	return out
}

// Role returns the role with the given id.
func (s *Server) Role(id string) (*Role, bool) {
	r, ok := s.Roles[id]
	return r, ok
}

// OrderedRoles returns every role of the server from lowest to highest
// priority.
func (s *Server) OrderedRoles() []*Role {
	roles := make([]*Role, 0, len(s.Roles))
	for _, r := range s.Roles {
		roles = append(roles, r)
	}
	SortRolesByPriority(roles)
	return roles
}

// HasChannel reports whether channelID is listed on the server.
func (s *Server) HasChannel(channelID string) bool {
	for _, id := range s.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// AddChannel appends channelID if it is not listed yet.
func (s *Server) AddChannel(channelID string) {
	if !s.HasChannel(channelID) {
		s.ChannelIDs = append(s.ChannelIDs, channelID)
	}
}

// RemoveChannel drops channelID from the channel list and every category.
func (s *Server) RemoveChannel(channelID string) {
	s.ChannelIDs = removeString(s.ChannelIDs, channelID)
	for i := range s.Categories {
		s.Categories[i].Channels = removeString(s.Categories[i].Channels, channelID)
	}
}

func removeString(in []string, v string) []string {
	out := in[:0]
	for _, s := range in {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// Clone copies the server. The member set is shared, since members are
// reconciled through their own events.
func (s *Server) Clone() *Server {
	c := *s
	c.Description = clonePtr(s.Description)
	c.ChannelIDs = cloneSlice(s.ChannelIDs)
	c.Categories = cloneCategories(s.Categories)
	c.SystemMessages = cloneSlice(s.SystemMessages)
	c.Icon = cloneSlice(s.Icon)
	c.Banner = cloneSlice(s.Banner)
	c.Roles = make(map[string]*Role, len(s.Roles))
	for id, r := range s.Roles {
		c.Roles[id] = r.Clone()
	}
	return &c
}

func (s *Server) withCleared(p ServerPatch, fields []ServerField) ServerPatch {
	for _, f := range fields {
		switch f {
		case ServerFieldDescription:
			p.Description = Null[string]()
		case ServerFieldCategories:
			p.Categories = Null[[]Category]()
		case ServerFieldSystemMessages:
			p.SystemMessages = Null[json.RawMessage]()
		case ServerFieldIcon:
			p.Icon = Null[File]()
		case ServerFieldBanner:
			p.Banner = Null[File]()
		}
	}
	return p
}

// Update applies a partial update. Fields named in clear are nulled first.
func (s *Server) Update(p ServerPatch, clear ...ServerField) {
	p = s.withCleared(p, clear)
	if p.Owner.Valid {
		s.OwnerID = p.Owner.Value
	}
	if p.Name.Valid && p.Name.Value != "" {
		s.Name = p.Name.Value
	}
	if p.Description.Present {
		s.Description = p.Description.Ptr()
	}
	if p.Channels.Valid {
		s.ChannelIDs = cloneSlice(p.Channels.Value)
	}
	if p.Categories.Present {
		s.Categories = cloneCategories(p.Categories.Value)
	}
	if p.SystemMessages.Present {
		s.SystemMessages = cloneSlice(p.SystemMessages.Value)
	}
	if p.DefaultPermissions.Valid {
		s.DefaultPermissions = p.DefaultPermissions.Value
	}
	if p.Icon.Present {
		s.Icon = cloneSlice(p.Icon.Value)
	}
	if p.Banner.Present {
		s.Banner = cloneSlice(p.Banner.Value)
	}
	if p.Flags.Present {
		s.Flags = p.Flags.Value
	}
	if p.NSFW.Present {
		s.NSFW = p.NSFW.Value
	}
	if p.Discoverable.Present {
		s.Discoverable = p.Discoverable.Value
	}
}
