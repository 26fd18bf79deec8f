package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

type fakeAPI struct {
	mu      sync.Mutex
	users   map[string]model.UserData
	unreads []model.UnreadData
	fetched []string
	syncs   int
	err     error
}

func (f *fakeAPI) FetchUser(_ context.Context, id string) (*model.UserData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.users[id]
	if !ok {
		return nil, &errs.APIError{Status: 404, Type: "NotFound"}
	}
	return &data, nil
}

func (f *fakeAPI) SyncUnreads(context.Context) ([]model.UnreadData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return f.unreads, f.err
}

type harness struct {
	r     *Reconciler
	cache *model.Cache
	api   *fakeAPI
	notes []events.Notification
	ready int
}

func setupReconciler(t *testing.T, syncUnreads bool) *harness {
	t.Helper()
	h := &harness{cache: model.NewCache(), api: &fakeAPI{users: map[string]model.UserData{}}}
	bus := events.NewBus(zap.NewNop())
	bus.Subscribe(func(n events.Notification) { h.notes = append(h.notes, n) })
	h.r = New(h.cache, bus, h.api, Options{
		SyncUnreads: syncUnreads,
		OnReady:     func() { h.ready++ },
	})
	h.r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

// apply decodes a raw frame and applies it.
func (h *harness) apply(t *testing.T, frame string) error {
	t.Helper()
	ev, err := protocol.Decode([]byte(frame))
	require.NoError(t, err)
	return h.r.Apply(context.Background(), ev)
}

func (h *harness) kinds() []events.Kind {
	out := make([]events.Kind, 0, len(h.notes))
	for _, n := range h.notes {
		out = append(out, n.Kind())
	}
	return out
}

func (h *harness) reset() {
	h.notes = nil
}

const readyFrame = `{
	"type": "Ready",
	"users": [
		{"_id": "u-self", "username": "me", "discriminator": "0001", "relationship": "User", "online": true},
		{"_id": "u-other", "username": "other", "discriminator": "0002", "relationship": "Friend"}
	],
	"servers": [
		{"_id": "s1", "owner": "u-other", "name": "Server", "channels": ["c1"], "default_permissions": 0,
		 "roles": {"r1": {"name": "Mod", "permissions": {"a": 1, "d": 0}, "rank": 1}}}
	],
	"channels": [
		{"_id": "c1", "channel_type": "TextChannel", "server": "s1", "name": "general"},
		{"_id": "g1", "channel_type": "Group", "name": "group", "owner": "u-self", "recipients": ["u-self", "u-other"]}
	],
	"members": [
		{"_id": {"server": "s1", "user": "u-self"}, "joined_at": "2024-01-01T00:00:00Z"}
	],
	"emojis": [
		{"_id": "e1", "parent": {"type": "Server", "id": "s1"}, "creator_id": "u-other", "name": "wave"}
	]
}`

func setupReady(t *testing.T) *harness {
	t.Helper()
	h := setupReconciler(t, false)
	require.NoError(t, h.apply(t, readyFrame))
	h.reset()
	return h
}

func TestReady_RoundTrip(t *testing.T) {
	h := setupReconciler(t, false)
	require.NoError(t, h.apply(t, readyFrame))

	self, ok := h.cache.Self()
	require.True(t, ok)
	assert.Equal(t, "u-self", self.ID)

	server, ok := h.cache.Server("s1")
	require.True(t, ok)
	channels := h.cache.ServerChannels(server)
	require.Len(t, channels, 1)
	assert.Equal(t, "c1", channels[0].Base().ID)

	_, ok = h.cache.Member("s1", "u-self")
	assert.True(t, ok)
	assert.True(t, h.cache.Emojis.Has("e1"))
	assert.Equal(t, 2, h.cache.Users.Len())

	assert.Equal(t, []events.Kind{events.KindReady}, h.kinds())
	assert.Equal(t, 1, h.ready)
	assert.Equal(t, 0, h.api.syncs)
}

func TestReady_SyncsUnreads(t *testing.T) {
	h := setupReconciler(t, true)
	last := "m9"
	h.api.unreads = []model.UnreadData{{ID: model.UnreadKey{Channel: "c1", User: "u-self"}, LastID: &last}}
	h.cache.Unreads.Set("stale", &model.ChannelUnread{ChannelID: "stale"})

	require.NoError(t, h.apply(t, readyFrame))

	assert.Equal(t, 1, h.api.syncs)
	assert.False(t, h.cache.Unreads.Has("stale"))
	u, ok := h.cache.Unreads.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "m9", *u.LastMessageID)
}

func TestReady_UnreadSyncFailureStillReady(t *testing.T) {
	h := setupReconciler(t, true)
	h.api.err = errors.New("down")

	err := h.apply(t, readyFrame)
	require.Error(t, err)
	assert.Equal(t, 1, h.ready)
	assert.Equal(t, []events.Kind{events.KindReady}, h.kinds())
}

func TestMessage_CreateDedupeAndHydration(t *testing.T) {
	h := setupReady(t)
	frame := `{"type":"Message","_id":"m1","channel":"c1","author":"u-new","content":"hi",
		"user":{"_id":"u-new","username":"new","discriminator":"0003"},
		"member":{"_id":{"server":"s1","user":"u-new"},"joined_at":"2024-01-01T00:00:00Z"}}`

	require.NoError(t, h.apply(t, frame))
	require.NoError(t, h.apply(t, frame))

	assert.Equal(t, []events.Kind{events.KindMessageCreate}, h.kinds())
	assert.True(t, h.cache.Users.Has("u-new"))
	_, ok := h.cache.Member("s1", "u-new")
	assert.True(t, ok)

	ch, ok := h.cache.Channel("c1")
	require.True(t, ok)
	require.NotNil(t, ch.Base().LastMessageID)
	assert.Equal(t, "m1", *ch.Base().LastMessageID)
}

func TestMessage_UpdateKeepsPrevious(t *testing.T) {
	h := setupReady(t)
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m1","channel":"c1","author":"u-other","content":"before"}`))
	h.reset()

	require.NoError(t, h.apply(t, `{"type":"MessageUpdate","id":"m1","channel":"c1","data":{"content":"after","edited":"2024-01-02T00:00:00Z"}}`))

	require.Len(t, h.notes, 1)
	n := h.notes[0].(events.MessageUpdate)
	assert.Equal(t, "before", *n.Previous.Content)
	assert.Equal(t, "after", *n.Message.Content)
	assert.NotNil(t, n.Message.Edited)

	cached, _ := h.cache.Messages.Get("m1")
	assert.Same(t, n.Message, cached)

	require.NoError(t, h.apply(t, `{"type":"MessageUpdate","id":"missing","channel":"c1","data":{"content":"x"}}`))
	assert.Len(t, h.notes, 1)
}

func TestMessage_AppendOnlyAppends(t *testing.T) {
	h := setupReady(t)
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m1","channel":"c1","author":"u-other","embeds":[{"type":"Text"}]}`))
	h.reset()

	require.NoError(t, h.apply(t, `{"type":"MessageAppend","id":"m1","channel":"c1","append":{"embeds":[{"type":"Website"}]}}`))

	msg, _ := h.cache.Messages.Get("m1")
	require.Len(t, msg.Embeds, 2)
	assert.JSONEq(t, `{"type":"Text"}`, string(msg.Embeds[0]))
	assert.JSONEq(t, `{"type":"Website"}`, string(msg.Embeds[1]))

	n := h.notes[0].(events.MessageUpdate)
	assert.Len(t, n.Previous.Embeds, 1)
}

func TestMessage_ReactionDedupe(t *testing.T) {
	h := setupReady(t)
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m1","channel":"c1","author":"u-other"}`))
	h.reset()

	react := `{"type":"MessageReact","id":"m1","channel_id":"c1","user_id":"u-self","emoji_id":"e1"}`
	require.NoError(t, h.apply(t, react))
	require.NoError(t, h.apply(t, react))

	msg, _ := h.cache.Messages.Get("m1")
	assert.Equal(t, []string{"u-self"}, msg.Reactions["e1"])
	assert.Equal(t, []events.Kind{events.KindReactionAdd}, h.kinds())

	require.NoError(t, h.apply(t, `{"type":"MessageUnreact","id":"m1","channel_id":"c1","user_id":"u-self","emoji_id":"e1"}`))
	msg, _ = h.cache.Messages.Get("m1")
	assert.False(t, msg.Reactions.Has("e1", "u-self"))

	require.NoError(t, h.apply(t, react))
	require.NoError(t, h.apply(t, `{"type":"MessageRemoveReaction","id":"m1","channel_id":"c1","emoji_id":"e1"}`))
	msg, _ = h.cache.Messages.Get("m1")
	_, present := msg.Reactions["e1"]
	assert.False(t, present)

	assert.Equal(t, []events.Kind{
		events.KindReactionAdd,
		events.KindReactionRemove,
		events.KindReactionAdd,
		events.KindReactionRemoveEmoji,
	}, h.kinds())
}

func TestMessage_BulkDeletePartialMiss(t *testing.T) {
	h := setupReady(t)
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m1","channel":"c1","author":"u-other"}`))
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m2","channel":"c1","author":"u-other"}`))
	h.reset()

	require.NoError(t, h.apply(t, `{"type":"BulkMessageDelete","channel":"c1","ids":["m1","missing","m2"]}`))

	require.Len(t, h.notes, 1)
	n := h.notes[0].(events.MessageDeleteBulk)
	require.Len(t, n.Messages, 2)
	assert.Equal(t, "m1", n.Messages[0].ID)
	assert.Equal(t, "m2", n.Messages[1].ID)
	assert.NotNil(t, n.Channel)
	assert.Equal(t, 0, h.cache.Messages.Len())

	require.NoError(t, h.apply(t, `{"type":"MessageDelete","id":"m1","channel":"c1"}`))
	assert.Len(t, h.notes, 1)
}

func TestChannel_ClearThenPatch(t *testing.T) {
	h := setupReady(t)

	require.NoError(t, h.apply(t, `{"type":"ChannelUpdate","id":"c1","data":{"name":"renamed","description":"set"},"clear":["Description"]}`))

	ch, _ := h.cache.Channel("c1")
	text := ch.(*model.TextChannel)
	assert.Equal(t, "renamed", text.Name)
	assert.Nil(t, text.Description)

	n := h.notes[0].(events.ChannelUpdate)
	assert.Equal(t, "general", n.Previous.(*model.TextChannel).Name)
}

func TestChannel_CreateAndDeleteTrackServer(t *testing.T) {
	h := setupReady(t)
	create := `{"type":"ChannelCreate","_id":"c2","channel_type":"VoiceChannel","server":"s1","name":"voice"}`

	require.NoError(t, h.apply(t, create))
	require.NoError(t, h.apply(t, create))

	server, _ := h.cache.Server("s1")
	assert.True(t, server.HasChannel("c2"))

	require.NoError(t, h.apply(t, `{"type":"ChannelDelete","id":"c2"}`))
	server, _ = h.cache.Server("s1")
	assert.False(t, server.HasChannel("c2"))
	assert.False(t, h.cache.Channels.Has("c2"))

	assert.Equal(t, []events.Kind{events.KindChannelCreate, events.KindChannelDelete}, h.kinds())
}

func TestChannel_GroupJoinFetchesUser(t *testing.T) {
	h := setupReady(t)
	h.api.users["u-new"] = model.UserData{ID: "u-new", Username: "new", Discriminator: "0004"}

	require.NoError(t, h.apply(t, `{"type":"ChannelGroupJoin","id":"g1","user":"u-new"}`))

	assert.Equal(t, []string{"u-new"}, h.api.fetched)
	ch, _ := h.cache.Channel("g1")
	assert.True(t, ch.(*model.Group).HasRecipient("u-new"))

	n := h.notes[0].(events.ChannelGroupJoin)
	require.NotNil(t, n.User)
	assert.Equal(t, "new", n.User.Username)

	require.NoError(t, h.apply(t, `{"type":"ChannelGroupLeave","id":"g1","user":"u-new"}`))
	ch, _ = h.cache.Channel("g1")
	assert.False(t, ch.(*model.Group).HasRecipient("u-new"))
	leave := h.notes[1].(events.ChannelGroupLeave)
	assert.Equal(t, "u-new", leave.UserID)
}

func TestChannel_Typing(t *testing.T) {
	h := setupReady(t)

	require.NoError(t, h.apply(t, `{"type":"ChannelStartTyping","id":"c1","user":"u-other"}`))
	require.NoError(t, h.apply(t, `{"type":"ChannelStartTyping","id":"c1","user":"u-unknown"}`))
	ch, _ := h.cache.Channel("c1")
	assert.Equal(t, []string{"u-other", "u-unknown"}, ch.Base().TypingIDs)

	require.NoError(t, h.apply(t, `{"type":"ChannelStopTyping","id":"c1","user":"u-other"}`))
	ch, _ = h.cache.Channel("c1")
	assert.Equal(t, []string{"u-unknown"}, ch.Base().TypingIDs)

	assert.Equal(t, []events.Kind{events.KindChannelStartTyping, events.KindChannelStopTyping}, h.kinds())
}

func TestServer_UpdateClearThenPatch(t *testing.T) {
	h := setupReady(t)

	require.NoError(t, h.apply(t, `{"type":"ServerUpdate","id":"s1","data":{"name":"New","description":"kept?"},"clear":["Description"]}`))

	server, _ := h.cache.Server("s1")
	assert.Equal(t, "New", server.Name)
	assert.Nil(t, server.Description)

	n := h.notes[0].(events.ServerUpdate)
	assert.Equal(t, "Server", n.Previous.Name)
}

func TestServer_CreateDedupe(t *testing.T) {
	h := setupReady(t)
	frame := `{"type":"ServerCreate","id":"s2","server":{"_id":"s2","owner":"u-self","name":"Two","channels":["c9"],"default_permissions":0},
		"channels":[{"_id":"c9","channel_type":"TextChannel","server":"s2","name":"nine"}]}`

	require.NoError(t, h.apply(t, frame))
	require.NoError(t, h.apply(t, frame))

	assert.Equal(t, []events.Kind{events.KindServerCreate}, h.kinds())
	assert.True(t, h.cache.Channels.Has("c9"))
}

func TestServer_RoleUpdateAndDelete(t *testing.T) {
	h := setupReady(t)

	require.NoError(t, h.apply(t, `{"type":"ServerRoleUpdate","id":"s1","role_id":"r1","data":{"name":"Admin"}}`))
	require.NoError(t, h.apply(t, `{"type":"ServerRoleUpdate","id":"s1","role_id":"r2","data":{"name":"Fresh","rank":5}}`))

	server, _ := h.cache.Server("s1")
	r1, ok := server.Role("r1")
	require.True(t, ok)
	assert.Equal(t, "Admin", r1.Name)
	r2, ok := server.Role("r2")
	require.True(t, ok)
	assert.Equal(t, int64(5), *r2.Rank)

	require.NoError(t, h.apply(t, `{"type":"ServerRoleDelete","id":"s1","role_id":"r2"}`))
	require.NoError(t, h.apply(t, `{"type":"ServerRoleDelete","id":"s1","role_id":"r2"}`))
	server, _ = h.cache.Server("s1")
	_, ok = server.Role("r2")
	assert.False(t, ok)

	assert.Equal(t, []events.Kind{
		events.KindServerRoleUpdate,
		events.KindServerRoleUpdate,
		events.KindServerRoleDelete,
	}, h.kinds())
}

func TestServer_MemberLifecycle(t *testing.T) {
	h := setupReady(t)
	h.api.users["u-new"] = model.UserData{ID: "u-new", Username: "new", Discriminator: "0005"}

	require.NoError(t, h.apply(t, `{"type":"ServerMemberJoin","id":"s1","user":"u-new"}`))
	require.NoError(t, h.apply(t, `{"type":"ServerMemberJoin","id":"s1","user":"u-new"}`))

	member, ok := h.cache.Member("s1", "u-new")
	require.True(t, ok)
	assert.Equal(t, h.r.now(), member.JoinedAt)
	assert.True(t, h.cache.Users.Has("u-new"))
	assert.Equal(t, []string{"u-new"}, h.api.fetched)

	require.NoError(t, h.apply(t, `{"type":"ServerMemberUpdate","id":{"server":"s1","user":"u-new"},"data":{"nickname":"nick","roles":["r1"]},"clear":["Nickname"]}`))
	member, _ = h.cache.Member("s1", "u-new")
	assert.Nil(t, member.Nickname)
	assert.Equal(t, []string{"r1"}, member.RoleIDs)

	require.NoError(t, h.apply(t, `{"type":"ServerMemberLeave","id":"s1","user":"u-new"}`))
	_, ok = h.cache.Member("s1", "u-new")
	assert.False(t, ok)

	assert.Equal(t, []events.Kind{
		events.KindServerMemberJoin,
		events.KindServerMemberUpdate,
		events.KindServerMemberLeave,
	}, h.kinds())
}

func TestServer_SelfLeaveDeletesServer(t *testing.T) {
	h := setupReady(t)

	require.NoError(t, h.apply(t, `{"type":"ServerMemberLeave","id":"s1","user":"u-self"}`))

	assert.False(t, h.cache.Servers.Has("s1"))
	assert.False(t, h.cache.Channels.Has("c1"))
	assert.Equal(t, []events.Kind{events.KindServerDelete}, h.kinds())
}

func TestUser_DerivedUpdates(t *testing.T) {
	h := setupReady(t)

	require.NoError(t, h.apply(t, `{"type":"UserRelationship","user":{"_id":"u-other","username":"other","discriminator":"0002","relationship":"Blocked"},"status":"Blocked"}`))
	require.NoError(t, h.apply(t, `{"type":"UserPresence","id":"u-other","online":true}`))
	require.NoError(t, h.apply(t, `{"type":"UserPresence","id":"u-unknown","online":true}`))

	user, _ := h.cache.User("u-other")
	assert.Equal(t, model.RelationshipBlocked, user.Relationship)
	assert.True(t, user.Online)

	require.Len(t, h.notes, 2)
	first := h.notes[0].(events.UserUpdate)
	assert.Equal(t, model.RelationshipFriend, first.Previous.Relationship)
	assert.Equal(t, model.RelationshipBlocked, first.User.Relationship)
}

func TestUser_PlatformWipe(t *testing.T) {
	h := setupReady(t)
	require.NoError(t, h.apply(t, `{"type":"UserUpdate","id":"u-other","data":{"display_name":"Other","status":{"text":"hello","presence":"Busy"}}}`))
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m1","channel":"c1","author":"u-other"}`))
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m2","channel":"c1","author":"u-self"}`))
	require.NoError(t, h.apply(t, `{"type":"Message","_id":"m3","channel":"g1","author":"u-other"}`))
	h.reset()

	require.NoError(t, h.apply(t, `{"type":"UserPlatformWipe","user_id":"u-other","flags":4}`))

	assert.Equal(t, []events.Kind{events.KindMessageDeleteBulk, events.KindUserUpdate}, h.kinds())
	bulk := h.notes[0].(events.MessageDeleteBulk)
	assert.Len(t, bulk.Messages, 2)
	assert.Nil(t, bulk.Channel)
	assert.True(t, h.cache.Messages.Has("m2"))

	user, _ := h.cache.User("u-other")
	assert.Equal(t, DeletedUsername, user.Username)
	assert.Equal(t, DeletedUsername, user.DisplayName)
	assert.Equal(t, uint32(4), user.Flags)
	assert.Equal(t, model.RelationshipNone, user.Relationship)
	assert.False(t, user.Online)
	require.NotNil(t, user.Status)
	assert.Nil(t, user.Status.Text)
	assert.Nil(t, user.Status.Presence)
}

func TestEmoji_CreateDedupeAndDelete(t *testing.T) {
	h := setupReady(t)
	frame := `{"type":"EmojiCreate","_id":"e2","parent":{"type":"Server","id":"s1"},"creator_id":"u-self","name":"cat"}`

	require.NoError(t, h.apply(t, frame))
	require.NoError(t, h.apply(t, frame))
	require.NoError(t, h.apply(t, `{"type":"EmojiDelete","id":"e2"}`))
	require.NoError(t, h.apply(t, `{"type":"EmojiDelete","id":"e2"}`))

	assert.False(t, h.cache.Emojis.Has("e2"))
	assert.Equal(t, []events.Kind{events.KindEmojiCreate, events.KindEmojiDelete}, h.kinds())
}

func TestAuth_NotImplemented(t *testing.T) {
	h := setupReady(t)
	before := h.cache.Sizes()

	err := h.apply(t, `{"type":"Auth","event_type":"DeleteSession","user_id":"u-self","session_id":"x"}`)

	assert.ErrorIs(t, err, errs.ErrNotImplemented)
	assert.Equal(t, before, h.cache.Sizes())
	assert.Empty(t, h.notes)
}

func TestBulk_AppliesInOrder(t *testing.T) {
	h := setupReady(t)

	err := h.apply(t, `{"type":"Bulk","v":[
		{"type":"Message","_id":"m1","channel":"c1","author":"u-other","content":"one"},
		{"type":"MessageUpdate","id":"m1","channel":"c1","data":{"content":"two"}},
		{"type":"Auth","event_type":"DeleteAllSessions","user_id":"u-self"},
		{"type":"MessageDelete","id":"m1","channel":"c1"}
	]}`)

	assert.ErrorIs(t, err, errs.ErrNotImplemented)
	assert.Equal(t, []events.Kind{
		events.KindMessageCreate,
		events.KindMessageUpdate,
		events.KindMessageDelete,
	}, h.kinds())
	assert.False(t, h.cache.Messages.Has("m1"))
}

func TestMutate_DoesNotPublish(t *testing.T) {
	h := setupReady(t)

	notes, err := h.r.Mutate(context.Background(), &protocol.ChannelAckEvent{ID: "c1", User: "u-self", MessageID: "m1"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "m1", notes[0].(events.ChannelAcknowledged).MessageID)
	assert.Empty(t, h.notes)
}

func TestControlFramesIgnored(t *testing.T) {
	h := setupReady(t)

	for _, frame := range []string{
		`{"type":"Authenticated"}`,
		`{"type":"Pong","data":1}`,
		`{"type":"SomethingNew","x":1}`,
	} {
		require.NoError(t, h.apply(t, frame))
	}
	assert.Empty(t, h.notes)
}
