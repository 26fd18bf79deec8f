package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/utils/ratelimit"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// setupServer starts an API stub answering with routes[method+" "+path].
func setupServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Header: r.Header.Clone(), Body: body})
		mu.Unlock()

		if h, ok := routes[r.Method+" "+r.URL.EscapedPath()]; ok {
			h(w)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type":"NotFound"}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), got...)
	}
}

func jsonReply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "/channels/c1", Bucket("/channels/c1/ack/m1"))
	assert.Equal(t, "/users/@me", Bucket("/users/@me"))
	assert.Equal(t, "/", Bucket("/"))
	assert.Equal(t, "/sync/unreads", Bucket("/sync/unreads"))
}

func TestAuthHeaders(t *testing.T) {
	srv, requests := setupServer(t, map[string]func(http.ResponseWriter){
		"GET /users/@me": jsonReply(200, `{"_id":"u1","username":"bot","discriminator":"0001"}`),
	})
	c := New(srv.URL + "/")

	c.SetBotToken("bot-token")
	_, err := c.FetchSelf(context.Background())
	require.NoError(t, err)

	c.SetSessionToken("session-token")
	_, err = c.FetchSelf(context.Background())
	require.NoError(t, err)

	c.ClearAuth()
	_, err = c.FetchSelf(context.Background())
	require.NoError(t, err)

	got := requests()
	require.Len(t, got, 3)
	assert.Equal(t, "bot-token", got[0].Header.Get(HeaderBotToken))
	assert.Empty(t, got[0].Header.Get(HeaderSessionToken))
	assert.Equal(t, "session-token", got[1].Header.Get(HeaderSessionToken))
	assert.Empty(t, got[1].Header.Get(HeaderBotToken))
	assert.Empty(t, got[2].Header.Get(HeaderBotToken))
	assert.Empty(t, got[2].Header.Get(HeaderSessionToken))
}

func TestAPIError(t *testing.T) {
	srv, _ := setupServer(t, map[string]func(http.ResponseWriter){
		"GET /users/missing": jsonReply(404, `{"type":"NotFound","location":"x"}`),
		"GET /users/broken":  jsonReply(500, `oops`),
	})
	c := New(srv.URL)

	_, err := c.FetchUser(context.Background(), "missing")
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, http.MethodGet, apiErr.Method)
	assert.Equal(t, "NotFound", apiErr.Type)
	assert.Contains(t, apiErr.URL, "/users/missing")

	_, err = c.FetchUser(context.Background(), "broken")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Empty(t, apiErr.Type)
	assert.Equal(t, []byte("oops"), apiErr.Body)
}

func TestRoutes(t *testing.T) {
	srv, requests := setupServer(t, map[string]func(http.ResponseWriter){
		"GET /":                      jsonReply(200, `{"revolt":"0.8.0","ws":"wss://ws.example","app":"https://app.example"}`),
		"POST /auth/session/login":   jsonReply(200, `{"result":"Success","_id":"s1","user_id":"u1","token":"tok","name":"cli"}`),
		"POST /auth/session/logout":  jsonReply(204, ``),
		"GET /onboard/hello":         jsonReply(200, `{"onboarding":true}`),
		"GET /users/u2":              jsonReply(200, `{"_id":"u2","username":"other","discriminator":"1234","online":true}`),
		"GET /sync/unreads":          jsonReply(200, `[{"_id":{"channel":"c1","user":"u1"},"last_id":"m1","mentions":["m0"]}]`),
		"PUT /channels/c1/ack/m9":    jsonReply(204, ``),
		"PATCH /users/@me":           jsonReply(200, `{}`),
		"DELETE /channels/c1/ack/m9": jsonReply(204, ``),
	})
	c := New(srv.URL)
	ctx := context.Background()

	root, err := c.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.example", root.WS)

	res, err := c.Login(ctx, LoginData{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, res.Result)
	assert.Equal(t, Session{ID: "s1", UserID: "u1", Token: "tok", Name: "cli"}, res.Session)

	require.NoError(t, c.Logout(ctx))

	onboarding, err := c.OnboardHello(ctx)
	require.NoError(t, err)
	assert.True(t, onboarding)

	user, err := c.FetchUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "other", user.Username)
	assert.True(t, user.Online)

	unreads, err := c.SyncUnreads(ctx)
	require.NoError(t, err)
	require.Len(t, unreads, 1)
	assert.Equal(t, "c1", unreads[0].ID.Channel)
	require.NotNil(t, unreads[0].LastID)
	assert.Equal(t, "m1", *unreads[0].LastID)

	require.NoError(t, c.AckMessage(ctx, "c1", "m9"))
	require.NoError(t, c.Patch(ctx, "/users/@me", map[string]string{"x": "y"}, nil))
	require.NoError(t, c.Delete(ctx, "/channels/c1/ack/m9", nil))

	got := requests()
	require.Len(t, got, 9)

	var login map[string]any
	require.NoError(t, json.Unmarshal(got[1].Body, &login))
	assert.Equal(t, map[string]any{"email": "a@b.c", "password": "pw"}, login)
	assert.Equal(t, "application/json", got[1].Header.Get("Content-Type"))
	assert.Empty(t, got[2].Body)
}

func TestLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	srv, requests := setupServer(t, map[string]func(http.ResponseWriter){
		"PUT /channels/c1/ack/m1": jsonReply(204, ``),
		"PUT /channels/c2/ack/m1": jsonReply(204, ``),
	})

	limiter := ratelimit.NewWindowLimiter(rdb, "test", ratelimit.Rule{Limit: 1, Window: time.Hour}, nil, false)
	c := New(srv.URL, WithLimiter(limiter, 5*time.Millisecond))

	require.NoError(t, c.AckMessage(context.Background(), "c1", "m1"))
	require.NoError(t, c.AckMessage(context.Background(), "c2", "m1"), "other channels have their own bucket")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = c.AckMessage(ctx, "c1", "m1")
	assert.ErrorIs(t, err, ratelimit.ErrLimited)
	assert.Len(t, requests(), 2)
}
