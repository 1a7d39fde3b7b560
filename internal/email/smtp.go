package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTP connection security modes
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string

	// TLSConfig overrides the TLS settings used for starttls and tls
	TLSConfig *tls.Config
}

// SMTPTransport sends mail through an authenticated SMTP session. The
// connection is opened on first use and kept until Close.
type SMTPTransport struct {
	config SMTPConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *smtp.Client
}

// NewSMTPTransport creates a transport; no connection is made yet
func NewSMTPTransport(config SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if config.Host == "" {
		config.Host = DefaultSMTPHost
	}
	if config.Port == 0 {
		config.Port = DefaultSMTPPort
	}
	if config.Security == "" {
		config.Security = SecurityStartTLS
	}

	return &SMTPTransport{
		config: config,
		logger: logger,
	}
}

func (t *SMTPTransport) addr() string {
	return net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
}

// Verify connects and authenticates
func (t *SMTPTransport) Verify(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.connect(ctx)
	return err
}

// Send delivers msg over the open connection, connecting if needed
func (t *SMTPTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	client, err := t.connect(ctx)
	if err != nil {
		return err
	}

	if err := client.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// Close ends the SMTP session with QUIT
func (t *SMTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}

	client := t.client
	t.client = nil

	if err := client.Quit(); err != nil {
		client.Close()
		return fmt.Errorf("smtp quit failed: %w", err)
	}
	return nil
}

// connect returns the open client or dials a new one. Callers hold mu.
func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	if t.client != nil {
		return t.client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := t.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.addr(), err)
	}

	if t.config.Username != "" {
		auth := sasl.NewPlainClient("", t.config.Username, t.config.Password)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp authentication failed for %s: %w", t.config.Username, err)
		}
	}

	t.logger.Debug("SMTP connection established", "addr", t.addr(), "security", t.config.Security)
	t.client = client
	return client, nil
}

func (t *SMTPTransport) dial() (*smtp.Client, error) {
	tlsConfig := t.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: t.config.Host}
	}

	switch t.config.Security {
	case SecurityStartTLS:
		return smtp.DialStartTLS(t.addr(), tlsConfig)
	case SecurityTLS:
		return smtp.DialTLS(t.addr(), tlsConfig)
	case SecurityNone:
		return smtp.Dial(t.addr())
	default:
		return nil, fmt.Errorf("unknown smtp security mode %q", t.config.Security)
	}
}
