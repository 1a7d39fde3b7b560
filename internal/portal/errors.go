package portal

import (
	"errors"
	"fmt"
)

// ErrSessionCleared is returned for any use of a gateway after its
// credentials were cleared. It indicates a programming error.
var ErrSessionCleared = errors.New("portal: session cleared")

// ConnectionError represents transport failures and unexpected redirect shapes
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	msg := "portal " + e.Op + ": connection failed"
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthError represents rejected credentials, use of an unauthenticated
// session, and failed logouts
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	msg := "portal " + e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is or wraps an *AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectionError reports whether err is or wraps a *ConnectionError
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

func notLoggedIn(op string) error {
	return &AuthError{Op: op, Message: "not logged in"}
}

func connectionErrorf(op, url, format string, args ...any) error {
	return &ConnectionError{Op: op, URL: url, Err: fmt.Errorf(format, args...)}
}
