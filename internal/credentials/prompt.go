package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// DefaultPromptAttempts bounds how often each account is asked for
const DefaultPromptAttempts = 10

// ErrNoTerminal is returned when interactive input is requested without
// a terminal on stdin
var ErrNoTerminal = errors.New("credentials: interactive input requires a terminal")

// CheckFunc reports whether a username and password are accepted
type CheckFunc func(ctx context.Context, username, password string) bool

// Account describes one set of credentials to ask for
type Account struct {
	Name          string
	UsernameLabel string
	PasswordLabel string
}

var (
	MailAccount = Account{
		Name:          "mail",
		UsernameLabel: "Email",
		PasswordLabel: "Email password (hidden)",
	}
	PortalAccount = Account{
		Name:          "jsos",
		UsernameLabel: "Jsos username",
		PasswordLabel: "Jsos password (hidden)",
	}
)

// askFunc fills username and password for the account
type askFunc func(account Account, username, password *string) error

// Prompter asks for credentials interactively and validates each pair
// before accepting it
type Prompter struct {
	Attempts int

	ask        askFunc
	isTerminal func() bool
	logger     *slog.Logger
}

// NewPrompter creates a prompter reading from the terminal
func NewPrompter(logger *slog.Logger) *Prompter {
	return &Prompter{
		Attempts: DefaultPromptAttempts,
		ask:      askWithForm,
		isTerminal: func() bool {
			fd := os.Stdin.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
		logger: logger,
	}
}

// Ask prompts for one account until check accepts the answer or the
// attempts run out
func (p *Prompter) Ask(ctx context.Context, account Account, check CheckFunc) (string, string, error) {
	if !p.isTerminal() {
		return "", "", ErrNoTerminal
	}

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultPromptAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		var username, password string
		if err := p.ask(account, &username, &password); err != nil {
			return "", "", fmt.Errorf("failed to read %s credentials: %w", account.Name, err)
		}

		if check(ctx, username, password) {
			return username, password, nil
		}

		p.logger.Warn("Try again", "account", account.Name, "attempt", attempt, "max_attempts", attempts)
	}

	p.logger.Warn("Wrong credentials", "account", account.Name)
	return "", "", fmt.Errorf("%w: %s", ErrInvalidCredentials, account.Name)
}

// Collect asks for the mail account first, then for the portal account
func (p *Prompter) Collect(ctx context.Context, checkMail, checkPortal CheckFunc) (Credentials, error) {
	mailUser, mailPass, err := p.Ask(ctx, MailAccount, checkMail)
	if err != nil {
		return Credentials{}, err
	}

	portalUser, portalPass, err := p.Ask(ctx, PortalAccount, checkPortal)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		PortalUsername: portalUser,
		PortalPassword: portalPass,
		MailUsername:   mailUser,
		MailPassword:   mailPass,
	}, nil
}

func askWithForm(account Account, username, password *string) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(account.UsernameLabel).
				Value(username).
				Validate(required(account.UsernameLabel)),
			huh.NewInput().
				Title(account.PasswordLabel).
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(required(account.PasswordLabel)),
		),
	).Run()
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
