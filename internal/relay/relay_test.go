package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
)

type recordingSink struct {
	name   string
	got    []events.Kind
	err    error
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, n events.Notification) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	s.got = append(s.got, n.Kind())
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.err
}

func TestEncode(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	msg := &model.Message{ID: "m1", ChannelID: "c1", AuthorID: "u1"}

	raw, err := Encode(events.MessageCreate{Message: msg}, at)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, events.KindMessageCreate, env.Kind)
	assert.Equal(t, "c1", env.Subject)
	assert.True(t, at.Equal(env.At))
	assert.Contains(t, string(env.Data), `"ChannelID":"c1"`)
}

func TestEncode_ConnectionError(t *testing.T) {
	raw, err := Encode(events.ConnectionError{Err: errors.New("boom")}, time.Now())
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Empty(t, env.Subject)
	assert.JSONEq(t, `{"error":"boom"}`, string(env.Data))
}

func TestFanout(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	f := NewFanout(zap.NewNop(), time.Second, failing)
	f.Add(ok)
	assert.Equal(t, 2, f.Len())

	bus := events.NewBus(nil)
	stop := f.Attach(bus)

	bus.Publish(events.Ready{})
	stop()
	bus.Publish(events.Logout{})

	assert.Equal(t, []events.Kind{events.KindReady}, ok.got)
	assert.Equal(t, []events.Kind{events.KindReady}, failing.got)

	err := f.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.True(t, ok.closed)
	assert.Equal(t, 0, f.Len())
}
