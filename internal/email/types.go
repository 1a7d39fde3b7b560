package email

import (
	"context"
	"errors"
	"time"
)

// Defaults for outbound mail
const (
	DefaultSMTPHost    = "smtp.gmail.com"
	DefaultSMTPPort    = 587
	DefaultFromAddress = "jsos_bot@pwr.edu.pl"
	DefaultDialTimeout = 30 * time.Second
)

// Transport delivers an already composed RFC 5322 message
type Transport interface {
	// Send delivers msg from the envelope sender to the given recipients
	Send(ctx context.Context, from string, to []string, msg []byte) error

	// Verify checks that the transport can reach the server and
	// authenticate with the configured account
	Verify(ctx context.Context) error

	// Close releases the connection, if any
	Close() error
}

// MailError reports a message assembled out of order
type MailError struct {
	Op      string
	Message string
}

func (e *MailError) Error() string {
	return "mail " + e.Op + ": " + e.Message
}

// IsMailError reports whether err is or wraps a *MailError
func IsMailError(err error) bool {
	var mailErr *MailError
	return errors.As(err, &mailErr)
}

// CheckMailCredentials reports whether the transport accepts the
// configured account. The transport is closed afterwards.
func CheckMailCredentials(ctx context.Context, transport Transport) bool {
	defer transport.Close()
	return transport.Verify(ctx) == nil
}
