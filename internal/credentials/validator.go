package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"portal-relay/internal/email"
	"portal-relay/internal/portal"
)

// TransportFactory builds a mail transport for the given account
type TransportFactory func(username, password string) (email.Transport, error)

// Validator checks credentials against the portal and the mail server
type Validator struct {
	portalConfig portal.Config
	newTransport TransportFactory
	logger       *slog.Logger
}

// NewValidator creates a validator
func NewValidator(portalConfig portal.Config, newTransport TransportFactory, logger *slog.Logger) *Validator {
	return &Validator{
		portalConfig: portalConfig,
		newTransport: newTransport,
		logger:       logger,
	}
}

// CheckPortal logs in once and out again
func (v *Validator) CheckPortal(ctx context.Context, username, password string) bool {
	return portal.CheckExists(ctx, v.portalConfig, username, password, v.logger)
}

// CheckMail connects and authenticates with the mail server
func (v *Validator) CheckMail(ctx context.Context, username, password string) bool {
	transport, err := v.newTransport(username, password)
	if err != nil {
		v.logger.Warn("Cannot create mail transport", "error", err)
		return false
	}

	if !email.CheckMailCredentials(ctx, transport) {
		v.logger.Warn("Wrong username and/or password", "account", username)
		return false
	}
	return true
}

// Validate checks the mail account, then the portal account
func (v *Validator) Validate(ctx context.Context, c Credentials) error {
	if !v.CheckMail(ctx, c.MailUsername, c.MailPassword) {
		return fmt.Errorf("%w: email", ErrInvalidCredentials)
	}
	if !v.CheckPortal(ctx, c.PortalUsername, c.PortalPassword) {
		return fmt.Errorf("%w: jsos", ErrInvalidCredentials)
	}
	return nil
}
