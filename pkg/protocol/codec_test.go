package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/chatsync/pkg/model"
)

func TestDecodeTypedEvents(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"Message","_id":"m1","channel":"c1","author":"u1","content":"hi"}`))
	require.NoError(t, err)
	msg, ok := ev.(*MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hi", *msg.Content)

	ev, err = Decode([]byte(`{"type":"ChannelUpdate","id":"c1","data":{"name":"x","description":null},"clear":["Icon"]}`))
	require.NoError(t, err)
	upd := ev.(*ChannelUpdateEvent)
	assert.Equal(t, "x", upd.Data.Name.Value)
	assert.True(t, upd.Data.Description.Present)
	assert.False(t, upd.Data.Description.Valid)
	assert.Equal(t, []model.ChannelField{model.ChannelFieldIcon}, upd.Clear)

	ev, err = Decode([]byte(`{"type":"ServerMemberUpdate","id":{"server":"s1","user":"u1"},"data":{},"clear":["Roles"]}`))
	require.NoError(t, err)
	mu := ev.(*ServerMemberUpdateEvent)
	assert.Equal(t, model.MemberKey{Server: "s1", User: "u1"}, mu.ID)

	ev, err = Decode([]byte(`{"type":"UserSettingsUpdate","id":"u1","update":{"theme":[1700000000000,"dark"]}}`))
	require.NoError(t, err)
	settings := ev.(*UserSettingsUpdateEvent)
	assert.Equal(t, SettingValue{UpdatedAt: 1700000000000, Value: "dark"}, settings.Update["theme"])
}

func TestDecodeBulkRecursively(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"Bulk","v":[
		{"type":"Pong","data":1},
		{"type":"Bulk","v":[{"type":"ChannelDelete","id":"c1"}]}
	]}`))
	require.NoError(t, err)

	bulk := ev.(*BulkEvent)
	require.Len(t, bulk.Events, 2)
	assert.Equal(t, TypePong, bulk.Events[0].Type())
	inner := bulk.Events[1].(*BulkEvent)
	require.Len(t, inner.Events, 1)
	assert.Equal(t, "c1", inner.Events[0].(*ChannelDeleteEvent).ID)
}

func TestDecodeUnknownAndInvalid(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"VoiceChannelJoin","id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, EventType("VoiceChannelJoin"), ev.Type())
	assert.IsType(t, &UnknownEvent{}, ev)

	_, err = Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"type":"Ping","data":"nope"}`))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	frames := []Event{
		&AuthenticatedEvent{},
		&PongEvent{Data: 42},
		&ChannelAckEvent{ID: "c1", User: "u1", MessageID: "m1"},
		&BulkEvent{Events: []Event{&PingEvent{Data: 1}, &ServerDeleteEvent{ID: "s1"}}},
	}
	for _, frame := range frames {
		raw, err := Encode(frame)
		require.NoError(t, err)

		back, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, frame.Type(), back.Type())
	}

	raw, err := Encode(&AuthenticatedEvent{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Authenticated"}`, string(raw))
}

func TestClientMessages(t *testing.T) {
	raw, err := json.Marshal(Ping(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Ping","data":0}`, string(raw))

	raw, err = json.Marshal(Authenticate("tok"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Authenticate","token":"tok"}`, string(raw))

	raw, err = json.Marshal(BeginTyping("c1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"BeginTyping","channel":"c1"}`, string(raw))
}
