// Package errs defines the error values shared by the sync engine.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnreachableCode is the root of every protocol violation.
	ErrUnreachableCode = errors.New("unreachable code")
	// ErrSocketClosed is returned when sending without an open transport.
	ErrSocketClosed = errors.New("socket closed")
	// ErrNotImplemented marks server events the engine does not handle yet.
	ErrNotImplemented = errors.New("not implemented")
	// ErrUnknownLoginResult is returned for login responses of unknown shape.
	ErrUnknownLoginResult = errors.New("unknown login result")
	// ErrNoSession is returned when an authenticated call runs before login.
	ErrNoSession = errors.New("no session")
	// ErrNotReady is returned when an operation needs the Ready snapshot.
	ErrNotReady = errors.New("client not ready")
)

// ProtocolError reports a frame that is illegal in the current connection
// state. It is fatal for the connection.
type ProtocolError struct {
	Frame string
	State string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unreachable code: %s frame received while %s", e.Frame, e.State)
}

func (e *ProtocolError) Unwrap() error {
	return ErrUnreachableCode
}

// LastErrorKind tells where a connection error came from.
type LastErrorKind string

const (
	LastErrorSocket LastErrorKind = "socket"
	LastErrorServer LastErrorKind = "revolt"
)

// LastError is the most recent connection error, kept for inspection.
type LastError struct {
	Kind LastErrorKind
	Err  error
	// Data is the raw Error frame payload for server errors.
	Data json.RawMessage
}

func (e *LastError) Error() string {
	if e.Kind == LastErrorServer {
		return fmt.Sprintf("server error: %s", string(e.Data))
	}
	return fmt.Sprintf("socket error: %v", e.Err)
}

func (e *LastError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status int
	Method string
	URL    string
	// Type is the error type reported by the server, if the body carried one.
	Type string
	Body []byte
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Type)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.URL, e.Status)
}

// LoginErrorCode names a login outcome that did not yield a session.
type LoginErrorCode string

const (
	LoginMFANotImplemented LoginErrorCode = "MFANotImplemented"
	LoginAccountDisabled   LoginErrorCode = "AccountDisabled"
)

type LoginError struct {
	Code   LoginErrorCode
	UserID string
}

func (e *LoginError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("login failed: %s (user %s)", e.Code, e.UserID)
	}
	return fmt.Sprintf("login failed: %s", e.Code)
}

// NotFoundError reports a required reference missing from the cache.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
