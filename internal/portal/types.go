package portal

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Default portal endpoints and timings
const (
	DefaultAuthURL       = "https://oauth.pwr.edu.pl"
	DefaultBaseURL       = "https://jsos.pwr.edu.pl"
	DefaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	DefaultLoginAttempts = 10
	DefaultRetryDelay    = 10 * time.Second
	DefaultTimeout       = 30 * time.Second
)

// Portal paths
const (
	loginPath    = "/index.php/site/loginAsStudent"
	logoutPath   = "/index.php/site/logout"
	messagesPath = "/index.php/student/wiadomosci"
	authPath     = "/oauth/authenticate"
)

// State is the lifecycle state of a Gateway
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// AuthTokens are the OAuth parameters carried by the login redirect
type AuthTokens struct {
	Token       string
	ConsumerKey string
	Locale      string
}

// Message is a single portal message scraped from the mailbox
type Message struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
	URL     string `json:"url"`
}

// Config contains configuration for portal sessions
type Config struct {
	AuthURL       string
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RetryDelay    time.Duration
	LoginAttempts int

	// Sleeper waits between authentication attempts. Nil means a
	// context-aware timer.
	Sleeper Sleeper
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Fetcher is the message surface available inside a managed session
type Fetcher interface {
	// HasUnread reports whether the listing contains unread rows. A nil
	// listing is fetched from the portal first.
	HasUnread(ctx context.Context, listing *goquery.Selection) (bool, error)

	// FetchUnread returns unread messages, at most max+1 of them
	FetchUnread(ctx context.Context, max int) ([]Message, error)

	// FetchAll returns the first max messages regardless of read state
	FetchAll(ctx context.Context, max int) ([]Message, error)
}

// withDefaults fills zero values with the package defaults
func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = DefaultLoginAttempts
	}
	if c.Sleeper == nil {
		c.Sleeper = sleepContext
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
