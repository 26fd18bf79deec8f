package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankOf(n int64) *int64 { return &n }

func testServer() *Server {
	return NewServer(ServerData{
		ID:       "s1",
		Owner:    "owner",
		Name:     "server",
		Channels: []string{"c1", "c2"},
		Categories: []Category{
			{ID: "cat", Title: "Text", Channels: []string{"c1", "c2"}},
		},
		Roles: map[string]RoleData{
			"admin": {Name: "admin", Rank: rankOf(0), Hoist: true, Colour: strPtr("red")},
			"mod":   {Name: "mod", Rank: rankOf(2), Hoist: true},
			"fan":   {Name: "fan", Colour: strPtr("blue")},
		},
	})
}

func TestMemberOrderedRoles(t *testing.T) {
	s := testServer()
	m := NewMember(MemberData{ID: MemberKey{Server: "s1", User: "u1"}, Roles: []string{"admin", "fan", "ghost", "mod", "admin"}})

	var names []string
	for _, r := range m.OrderedRoles(s) {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"fan", "mod", "admin"}, names)
	assert.Equal(t, float64(0), m.Ranking(s))
	assert.Equal(t, "admin", m.HoistedRole(s).Name)
	assert.Equal(t, "red", *m.RoleColour(s))
}

func TestMemberRanking(t *testing.T) {
	s := testServer()

	owner := NewMember(MemberData{ID: MemberKey{Server: "s1", User: "owner"}})
	assert.Equal(t, float64(-1), owner.Ranking(s))

	plain := NewMember(MemberData{ID: MemberKey{Server: "s1", User: "u2"}})
	assert.True(t, math.IsInf(plain.Ranking(s), 1))
	assert.Nil(t, plain.HoistedRole(s))
}

func TestMemberUpdateClears(t *testing.T) {
	until := time.Now().Add(time.Hour)
	m := NewMember(MemberData{
		ID:       MemberKey{Server: "s1", User: "u1"},
		Nickname: strPtr("nick"),
		Roles:    []string{"mod"},
		Timeout:  &until,
	})
	assert.True(t, m.TimedOut(time.Now()))

	m.Update(MemberPatch{Nickname: Some("other")}, MemberFieldNickname, MemberFieldRoles, MemberFieldTimeout)

	assert.Nil(t, m.Nickname)
	assert.NotNil(t, m.RoleIDs)
	assert.Empty(t, m.RoleIDs)
	assert.False(t, m.TimedOut(time.Now()))
}

func TestServerRemoveChannel(t *testing.T) {
	s := testServer()
	s.RemoveChannel("c1")

	assert.Equal(t, []string{"c2"}, s.ChannelIDs)
	assert.Equal(t, []string{"c2"}, s.Categories[0].Channels)
	assert.False(t, s.HasChannel("c1"))

	s.AddChannel("c2")
	s.AddChannel("c3")
	assert.Equal(t, []string{"c2", "c3"}, s.ChannelIDs)
}

func TestServerUpdateAndClone(t *testing.T) {
	s := testServer()
	prev := s.Clone()

	s.Update(ServerPatch{Name: Some("renamed"), Categories: Some([]Category{{ID: "x"}})},
		ServerFieldCategories, ServerFieldDescription)

	assert.Equal(t, "renamed", s.Name)
	assert.Nil(t, s.Categories)
	assert.Equal(t, "server", prev.Name)
	assert.Len(t, prev.Categories, 1)
	assert.Same(t, s.Members, prev.Members)
}

func TestRoleUpdate(t *testing.T) {
	s := testServer()
	r, ok := s.Role("fan")
	require.True(t, ok)

	r.Update(RolePatch{Rank: Some(int64(1)), Colour: Null[string]()})
	assert.Equal(t, float64(1), r.RankValue())
	assert.Nil(t, r.Colour)
}
