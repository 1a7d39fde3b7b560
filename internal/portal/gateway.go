package portal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
)

// Gateway is the public face of a portal account: login, logout and
// message retrieval over one Session
type Gateway struct {
	config  Config
	session *Session
	scraper *Scraper
	logger  *slog.Logger
}

// NewGateway creates an unauthenticated gateway for the given account
func NewGateway(config Config, username, password string, logger *slog.Logger) (*Gateway, error) {
	config = config.withDefaults()

	session, err := newSession(config, username, password, logger)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:  config,
		session: session,
		logger:  logger,
	}
	g.scraper = newScraper(session, func(ctx context.Context) error {
		return g.Login(ctx, 0)
	}, logger)

	return g, nil
}

// State returns the current lifecycle state
func (g *Gateway) State() State {
	switch {
	case g.session.cleared:
		return StateCleared
	case g.session.authenticated:
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Login runs the OAuth handshake. attempts bounds the authentication
// retries; zero or less uses the configured LoginAttempts. On failure
// the gateway stays unauthenticated.
func (g *Gateway) Login(ctx context.Context, attempts int) error {
	if g.session.cleared {
		return ErrSessionCleared
	}
	if attempts <= 0 {
		attempts = g.config.LoginAttempts
	}

	g.session.authenticated = false

	tokens, err := g.session.initiate(ctx)
	if err != nil {
		return err
	}

	if err := g.session.authenticate(ctx, tokens, attempts); err != nil {
		return err
	}

	g.session.authenticated = true
	return nil
}

// Logout ends an authenticated session. With clearCredentials the
// session and credentials are wiped and the gateway becomes unusable;
// the wipe happens even when the logout request itself fails.
func (g *Gateway) Logout(ctx context.Context, clearCredentials bool) error {
	if g.session.cleared {
		return ErrSessionCleared
	}
	if clearCredentials {
		defer g.session.clear()
	}

	if !g.session.authenticated {
		return notLoggedIn("logout")
	}

	g.logger.Info("Processing logout")
	return g.session.terminate(ctx)
}

// HasUnread reports whether the mailbox has unread messages
func (g *Gateway) HasUnread(ctx context.Context, listing *goquery.Selection) (bool, error) {
	if g.session.cleared {
		return false, ErrSessionCleared
	}
	return g.scraper.HasUnread(ctx, listing)
}

// FetchUnread returns up to max+1 unread messages
func (g *Gateway) FetchUnread(ctx context.Context, max int) ([]Message, error) {
	if g.session.cleared {
		return nil, ErrSessionCleared
	}
	return g.scraper.FetchUnread(ctx, max)
}

// FetchAll returns the first max messages
func (g *Gateway) FetchAll(ctx context.Context, max int) ([]Message, error) {
	if g.session.cleared {
		return nil, ErrSessionCleared
	}
	return g.scraper.FetchAll(ctx, max)
}

// WithSession logs in, runs fn and always releases the session with
// Logout(ctx, true), also when fn fails or panics. A failed login
// returns without any logout. Errors from fn and logout are joined.
func (g *Gateway) WithSession(ctx context.Context, fn func(Fetcher) error) (err error) {
	g.logger.Info("Starting connection with portal")
	if err := g.Login(ctx, 0); err != nil {
		return err
	}

	defer func() {
		g.logger.Info("Closing connection with portal")
		if !g.session.authenticated {
			// dropped by the portal and not recovered; nothing to log out of
			g.session.clear()
			return
		}
		if logoutErr := g.Logout(ctx, true); logoutErr != nil {
			err = errors.Join(err, logoutErr)
		}
	}()

	return fn(g)
}

// CheckExists reports whether the credentials can log in, using a
// throwaway gateway and a single authentication attempt. Failures are
// logged, not returned.
func CheckExists(ctx context.Context, config Config, username, password string, logger *slog.Logger) bool {
	g, err := NewGateway(config, username, password, logger)
	if err != nil {
		logger.Warn("Cannot create portal session", "error", err)
		return false
	}

	if err := g.Login(ctx, 1); err != nil {
		logger.Warn("Wrong username and/or password", "error", err)
		return false
	}

	if err := g.Logout(ctx, true); err != nil {
		logger.Warn("Logout after credential check failed", "error", err)
		return false
	}

	return true
}
