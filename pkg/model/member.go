package model

import (
	"math"
	"time"
)

// MemberKey identifies a member by server and user.
type MemberKey struct {
	Server string `json:"server"`
	User   string `json:"user"`
}

// MemberData is the wire shape of a server member.
type MemberData struct {
	ID       MemberKey  `json:"_id"`
	JoinedAt time.Time  `json:"joined_at"`
	Nickname *string    `json:"nickname,omitempty"`
	Avatar   File       `json:"avatar,omitempty"`
	Roles    []string   `json:"roles,omitempty"`
	Timeout  *time.Time `json:"timeout,omitempty"`
}

// MemberPatch is a partial member update.
type MemberPatch struct {
	Nickname Nullable[string]    `json:"nickname,omitzero"`
	Avatar   Nullable[File]      `json:"avatar,omitzero"`
	Roles    Nullable[[]string]  `json:"roles,omitzero"`
	Timeout  Nullable[time.Time] `json:"timeout,omitzero"`
}

// MemberField names a member property that can be cleared.
type MemberField string

const (
	MemberFieldNickname MemberField = "Nickname"
	MemberFieldAvatar   MemberField = "Avatar"
	MemberFieldRoles    MemberField = "Roles"
	MemberFieldTimeout  MemberField = "Timeout"
)

type Member struct {
	Key      MemberKey
	JoinedAt time.Time
	Nickname *string
	Avatar   File
	RoleIDs  []string
	Timeout  *time.Time
}

func NewMember(data MemberData) *Member {
	return &Member{
		Key:      data.ID,
		JoinedAt: data.JoinedAt,
		Nickname: clonePtr(data.Nickname),
		Avatar:   cloneSlice(data.Avatar),
		RoleIDs:  cloneSlice(data.Roles),
		Timeout:  clonePtr(data.Timeout),
	}
}

// UserID returns the id of the member's user.
func (m *Member) UserID() string {
	return m.Key.User
}

func (m *Member) Clone() *Member {
	c := *m
	c.Nickname = clonePtr(m.Nickname)
	c.Avatar = cloneSlice(m.Avatar)
	c.RoleIDs = cloneSlice(m.RoleIDs)
	c.Timeout = clonePtr(m.Timeout)
	return &c
}

// HasRole reports whether the member holds roleID.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// TimedOut reports whether the member's timeout is still running at now.
func (m *Member) TimedOut(now time.Time) bool {
	return m.Timeout != nil && m.Timeout.After(now)
}

// OrderedRoles resolves the member's roles through server and orders them
// from lowest to highest priority. Role ids the server does not know are
// skipped.
func (m *Member) OrderedRoles(server *Server) []*Role {
	roles := make([]*Role, 0, len(m.RoleIDs))
	seen := make(map[string]struct{}, len(m.RoleIDs))
	for _, id := range m.RoleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if r, ok := server.Role(id); ok {
			roles = append(roles, r)
		}
	}
	SortRolesByPriority(roles)
	return roles
}

// Ranking is -1 for the server owner, otherwise the rank of the member's
// highest priority role, or +Inf without any ranked role. Smaller is higher.
func (m *Member) Ranking(server *Server) float64 {
	if m.Key.User == server.OwnerID {
		return -1
	}
	roles := m.OrderedRoles(server)
	if len(roles) == 0 {
		return math.Inf(1)
	}
	return roles[len(roles)-1].RankValue()
}

// HoistedRole is the highest priority hoisted role, if any.
func (m *Member) HoistedRole(server *Server) *Role {
	var out *Role
	for _, r := range m.OrderedRoles(server) {
		if r.Hoist {
			out = r
		}
	}
	return out
}

// RoleColour is the colour of the highest priority coloured role.
func (m *Member) RoleColour(server *Server) *string {
	var out *string
	for _, r := range m.OrderedRoles(server) {
		if r.Colour != nil && *r.Colour != "" {
			out = r.Colour
		}
	}
	return out
}

func (m *Member) withCleared(p MemberPatch, fields []MemberField) MemberPatch {
	for _, f := range fields {
		switch f {
		case MemberFieldNickname:
			p.Nickname = Null[string]()
		case MemberFieldAvatar:
			p.Avatar = Null[File]()
		case MemberFieldRoles:
			p.Roles = Some([]string{})
		case MemberFieldTimeout:
			p.Timeout = Null[time.Time]()
		}
	}
	return p
}

// Update applies a partial update. Fields named in clear are nulled first.
func (m *Member) Update(p MemberPatch, clear ...MemberField) {
	p = m.withCleared(p, clear)
	if p.Nickname.Present {
		m.Nickname = p.Nickname.Ptr()
	}
	if p.Avatar.Present {
		m.Avatar = nil
		if p.Avatar.Valid {
			m.Avatar = cloneSlice(p.Avatar.Value)
		}
	}
	if p.Timeout.Present {
		m.Timeout = p.Timeout.Ptr()
	}
	if p.Roles.Present {
		m.RoleIDs = cloneSlice(p.Roles.Value)
		if m.RoleIDs == nil {
			m.RoleIDs = []string{}
		}
	}
}
