// Package rest performs the few authenticated HTTP calls the sync engine
// needs: configuration, login, user fetches, unread sync and acks.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/pkg/errs"
	"github.com/Gopher0727/chatsync/utils/ratelimit"
)

const (
	HeaderBotToken     = "X-Bot-Token"
	HeaderSessionToken = "X-Session-Token"
)

// Client is an authenticated JSON client for one API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    ratelimit.Limiter
	limitPoll  time.Duration

	mu         sync.RWMutex
	authHeader string
	authToken  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithLimiter makes every request wait for a slot in limiter, keyed by method
// and route bucket. poll is how often a denied request retries.
func WithLimiter(limiter ratelimit.Limiter, poll time.Duration) Option {
	return func(c *Client) {
		c.limiter = limiter
		c.limitPoll = poll
	}
}

func defaultHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 100
	t.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Transport: t,
		Timeout:   30 * time.Second,
	}
}

// New creates a client for baseURL, e.g. "https://api.revolt.chat".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    zap.NewNop(),
		limitPoll: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetBotToken authenticates further requests as a bot.
func (c *Client) SetBotToken(token string) {
	c.setAuth(HeaderBotToken, token)
}

// SetSessionToken authenticates further requests with a user session.
func (c *Client) SetSessionToken(token string) {
	c.setAuth(HeaderSessionToken, token)
}

// ClearAuth drops the authentication header.
func (c *Client) ClearAuth() {
	c.setAuth("", "")
}

func (c *Client) setAuth(header, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authHeader = header
	c.authToken = token
}

// AuthHeader returns the header name and value sent with each request.
func (c *Client) AuthHeader() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authHeader, c.authToken
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Request(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Request(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Request(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Request(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Request(ctx, http.MethodDelete, path, nil, out)
}

// Request sends body as JSON and decodes the response into out. A nil out
// discards the response. Non-2xx responses become *errs.APIError.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := ratelimit.Wait(ctx, c.limiter, method+" "+Bucket(path), c.limitPoll); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if header, token := c.AuthHeader(); header != "" {
		req.Header.Set(header, token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
	}

	c.logger.Debug("REST request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &errs.APIError{Status: resp.StatusCode, Method: method, URL: url, Body: raw}
		var typed struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &typed) == nil {
			apiErr.Type = typed.Type
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
	}
	return nil
}

// Bucket collapses a path to its rate limit bucket: the first segment plus
// the resource id, e.g. "/channels/01H.../ack/01J..." -> "/channels/01H...".
func Bucket(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(parts) >= 2 {
		return "/" + parts[0] + "/" + parts[1]
	}
	return "/" + parts[0]
}
