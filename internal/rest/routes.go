package rest

import (
	"context"
	"net/url"

	"github.com/Gopher0727/chatsync/pkg/model"
)

// RootConfig is the public configuration served at GET /.
type RootConfig struct {
	Revolt   string         `json:"revolt"`
	WS       string         `json:"ws"`
	App      string         `json:"app"`
	VapidKey string         `json:"vapid,omitempty"`
	Features map[string]any `json:"features,omitempty"`
}

// LoginData is the body of POST /auth/session/login. Either Email and
// Password or an MFA ticket with its response are set.
type LoginData struct {
	Email        string       `json:"email,omitempty"`
	Password     string       `json:"password,omitempty"`
	MFATicket    string       `json:"mfa_ticket,omitempty"`
	MFAResponse  *MFAResponse `json:"mfa_response,omitempty"`
	FriendlyName *string      `json:"friendly_name,omitempty"`
}

type MFAResponse struct {
	Password     string `json:"password,omitempty"`
	RecoveryCode string `json:"recovery_code,omitempty"`
	TOTPCode     string `json:"totp_code,omitempty"`
}

// Login results.
const (
	LoginSuccess  = "Success"
	LoginMFA      = "MFA"
	LoginDisabled = "Disabled"
)

// LoginResponse is the union of every login result. Result selects which
// fields are set.
type LoginResponse struct {
	Result string `json:"result"`

	// Success
	Session

	// MFA
	Ticket         string   `json:"ticket,omitempty"`
	AllowedMethods []string `json:"allowed_methods,omitempty"`
}

// Session is an authenticated user session.
type Session struct {
	ID     string `json:"_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Root fetches the API configuration.
func (c *Client) Root(ctx context.Context) (*RootConfig, error) {
	var out RootConfig
	if err := c.Get(ctx, "/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, data LoginData) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.Post(ctx, "/auth/session/login", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Post(ctx, "/auth/session/logout", nil, nil)
}

// OnboardHello reports whether the account still has to pick a username.
func (c *Client) OnboardHello(ctx context.Context) (bool, error) {
	var out struct {
		Onboarding bool `json:"onboarding"`
	}
	if err := c.Get(ctx, "/onboard/hello", &out); err != nil {
		return false, err
	}
	return out.Onboarding, nil
}

// FetchSelf fetches the authenticated user.
func (c *Client) FetchSelf(ctx context.Context) (*model.UserData, error) {
	return c.FetchUser(ctx, "@me")
}

func (c *Client) FetchUser(ctx context.Context, id string) (*model.UserData, error) {
	var out model.UserData
	if err := c.Get(ctx, "/users/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncUnreads fetches the read state of every channel.
func (c *Client) SyncUnreads(ctx context.Context) ([]model.UnreadData, error) {
	var out []model.UnreadData
	if err := c.Get(ctx, "/sync/unreads", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AckMessage marks channelID as read up to messageID.
func (c *Client) AckMessage(ctx context.Context, channelID, messageID string) error {
	return c.Put(ctx, "/channels/"+url.PathEscape(channelID)+"/ack/"+url.PathEscape(messageID), nil, nil)
}
