package portal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// failureMarker appears in the authentication response when the
// credentials were rejected
const failureMarker = "message error"

// Session holds the HTTP client, cookie state and credentials of one
// portal login. It is owned by a Gateway.
type Session struct {
	config        Config
	client        *http.Client
	username      string
	password      string
	authenticated bool
	cleared       bool
	logger        *slog.Logger
}

// page is a fetched response body with its final URL after redirects
type page struct {
	status int
	body   string
	url    *url.URL
}

// newSession creates a session with an empty cookie jar
func newSession(config Config, username, password string, logger *slog.Logger) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Session{
		config: config,
		client: &http.Client{
			Jar:     jar,
			Timeout: config.Timeout,
		},
		username: username,
		password: password,
		logger:   logger,
	}, nil
}

// Authenticated reports whether the session completed a login that has
// not been terminated since
func (s *Session) Authenticated() bool {
	return s.authenticated
}

// initiate starts the OAuth handshake and returns the tokens found in
// the redirect target
func (s *Session) initiate(ctx context.Context) (AuthTokens, error) {
	loginURL := s.config.BaseURL + loginPath

	resp, err := s.get(ctx, loginURL)
	if err != nil {
		return AuthTokens{}, &ConnectionError{Op: "initiate", URL: loginURL, Err: err}
	}

	if resp.url == nil || resp.url.String() == loginURL {
		return AuthTokens{}, connectionErrorf("initiate", loginURL, "no OAuth redirect url")
	}

	query := resp.url.Query()
	tokens := AuthTokens{
		Token:       query.Get("oauth_token"),
		ConsumerKey: query.Get("oauth_consumer_key"),
		Locale:      query.Get("oauth_locale"),
	}

	switch {
	case tokens.Token == "":
		return AuthTokens{}, connectionErrorf("initiate", resp.url.String(), "redirect is missing oauth_token")
	case tokens.ConsumerKey == "":
		return AuthTokens{}, connectionErrorf("initiate", resp.url.String(), "redirect is missing oauth_consumer_key")
	case tokens.Locale == "":
		return AuthTokens{}, connectionErrorf("initiate", resp.url.String(), "redirect is missing oauth_locale")
	}

	s.logger.Debug("OAuth handshake initiated", "locale", tokens.Locale)
	return tokens, nil
}

// authenticate submits the credentials with the OAuth tokens. Rejected
// credentials fail at once; any other failure is retried after
// RetryDelay until attempts are used up.
func (s *Session) authenticate(ctx context.Context, tokens AuthTokens, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}

	authURL := fmt.Sprintf("%s%s?0-1.IFormSubmitListener-authenticateForm&oauth_token=%s&oauth_consumer_key=%s&oauth_locale=%s",
		s.config.AuthURL, authPath,
		url.QueryEscape(tokens.Token),
		url.QueryEscape(tokens.ConsumerKey),
		url.QueryEscape(tokens.Locale))

	form := url.Values{
		"id1_hf_0":           {""},
		"oauth_request_url":  {s.config.AuthURL + authPath},
		"oauth_consumer_key": {tokens.ConsumerKey},
		"oauth_token":        {tokens.Token},
		"oauth_locale":       {tokens.Locale},
		"oauth_callback_url": {s.config.BaseURL + loginPath},
		"oauth_symbol":       {"EIS"},
		"username":           {s.username},
		"password":           {s.password},
		"authenticateButton": {"Zaloguj"},
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := s.postForm(ctx, authURL, form)
		switch {
		case err != nil:
			lastErr = &ConnectionError{Op: "authenticate", URL: authURL, Err: err}
		case strings.Contains(resp.body, failureMarker):
			return &AuthError{Op: "authenticate", Message: "login not successful - check username and/or password"}
		case resp.status == http.StatusOK:
			s.logger.Info("Login successful", "attempt", attempt)
			return nil
		default:
			lastErr = fmt.Errorf("unexpected status %d", resp.status)
		}

		if attempt == attempts {
			break
		}

		s.logger.Warn("Login not successful, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"retry_in", s.config.RetryDelay,
			"error", lastErr)

		if err := s.config.Sleeper(ctx, s.config.RetryDelay); err != nil {
			return &AuthError{Op: "authenticate", Message: "login interrupted", Err: err}
		}
	}

	return &AuthError{
		Op:      "authenticate",
		Message: fmt.Sprintf("login not successful after %d tries", attempts),
		Err:     lastErr,
	}
}

// terminate logs the session out of the portal
func (s *Session) terminate(ctx context.Context) error {
	logoutURL := s.config.BaseURL + logoutPath

	resp, err := s.get(ctx, logoutURL)
	if err != nil {
		return &ConnectionError{Op: "logout", URL: logoutURL, Err: err}
	}

	if resp.status != http.StatusOK {
		return &AuthError{Op: "logout", Message: fmt.Sprintf("cannot log user out (status %d)", resp.status)}
	}

	s.authenticated = false
	s.logger.Info("Logged out successfully")
	return nil
}

// clear drops the HTTP client and the credentials. The session cannot
// be used afterwards.
func (s *Session) clear() {
	s.client = nil
	s.username = ""
	s.password = ""
	s.authenticated = false
	s.cleared = true
	s.logger.Info("User data cleared")
}

// fetchPage fetches a portal page and requires a 200 response
func (s *Session) fetchPage(ctx context.Context, op, pageURL string) (string, error) {
	resp, err := s.get(ctx, pageURL)
	if err != nil {
		return "", &ConnectionError{Op: op, URL: pageURL, Err: err}
	}

	if resp.status != http.StatusOK {
		return "", connectionErrorf(op, pageURL, "HTTP error %d", resp.status)
	}

	return resp.body, nil
}

func (s *Session) get(ctx context.Context, target string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return s.do(req)
}

func (s *Session) postForm(ctx context.Context, target string, form url.Values) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Session) do(req *http.Request) (*page, error) {
	if s.client == nil {
		return nil, ErrSessionCleared
	}

	// Browser-like headers; the portal serves the same markup to any agent
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pl,en-US;q=0.7,en;q=0.3")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &page{
		status: resp.StatusCode,
		body:   string(body),
		url:    resp.Request.URL,
	}, nil
}
