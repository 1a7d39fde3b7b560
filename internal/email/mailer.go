package email

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// MailerConfig contains configuration for composing relayed messages
type MailerConfig struct {
	// Account is the mail account that sends, and by default receives,
	// relayed messages
	Account string

	// FromAddress is the address shown in From next to the original
	// sender's name
	FromAddress string
}

// Mailer assembles one HTML message at a time and hands it to a
// Transport. The order is Prepare, SetHeaders, SetBody, Send.
type Mailer struct {
	config    MailerConfig
	transport Transport
	logger    *slog.Logger

	prepared bool
	header   *mail.Header
	sender   string
	body     string

	now func() time.Time
}

// NewMailer creates a mailer sending through transport
func NewMailer(config MailerConfig, transport Transport, logger *slog.Logger) *Mailer {
	if config.FromAddress == "" {
		config.FromAddress = DefaultFromAddress
	}

	return &Mailer{
		config:    config,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

// Prepare starts a new message, discarding any unsent one
func (m *Mailer) Prepare() {
	m.prepared = true
	m.header = nil
	m.sender = ""
	m.body = ""
}

// SetHeaders sets subject and sender. from is the display name of the
// original author; the address is always FromAddress.
func (m *Mailer) SetHeaders(subject, from string) error {
	if !m.prepared {
		return &MailError{Op: "set headers", Message: "message not prepared"}
	}

	var h mail.Header
	h.SetDate(m.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Name: from, Address: m.config.FromAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: m.config.Account}})
	h.SetMessageID(uuid.NewString() + "@portal-relay")
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	m.header = &h
	m.sender = from
	return nil
}

// SetBody sets the HTML content, prefixed with the original sender
func (m *Mailer) SetBody(content string) error {
	if !m.prepared {
		return &MailError{Op: "set body", Message: "message not prepared"}
	}
	if m.header == nil {
		return &MailError{Op: "set body", Message: "headers not prepared"}
	}

	m.body = fmt.Sprintf("From: <b>%s</b><br/><br/>%s", html.EscapeString(m.sender), content)
	return nil
}

// Send delivers the message to the given recipients, or to the account
// itself when none are given. The message is consumed either way.
func (m *Mailer) Send(ctx context.Context, to ...string) error {
	if !m.prepared {
		return &MailError{Op: "send", Message: "message not prepared"}
	}
	if m.header == nil {
		return &MailError{Op: "send", Message: "headers not prepared"}
	}
	defer m.reset()

	if len(to) == 0 {
		to = []string{m.config.Account}
	} else {
		list := make([]*mail.Address, 0, len(to))
		for _, addr := range to {
			list = append(list, &mail.Address{Address: addr})
		}
		m.header.SetAddressList("To", list)
	}

	raw, err := m.render()
	if err != nil {
		return err
	}

	subject, _ := m.header.Subject()
	if err := m.transport.Send(ctx, m.config.Account, to, raw); err != nil {
		return fmt.Errorf("failed to send message %q: %w", subject, err)
	}

	m.logger.Info("Message relayed", "subject", subject, "sender", m.sender, "recipients", len(to))
	return nil
}

// Close closes the underlying transport
func (m *Mailer) Close() error {
	m.reset()
	return m.transport.Close()
}

func (m *Mailer) render() ([]byte, error) {
	var buf bytes.Buffer

	w, err := mail.CreateSingleInlineWriter(&buf, *m.header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(m.body)); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), nil
}

func (m *Mailer) reset() {
	m.prepared = false
	m.header = nil
	m.sender = ""
	m.body = ""
}
