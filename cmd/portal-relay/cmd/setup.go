package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"portal-relay/internal/cli"
	"portal-relay/internal/config"
	"portal-relay/internal/credentials"
	"portal-relay/internal/email"
	"portal-relay/internal/portal"
)

// autoLogFile asks for a log file named after the start time
const autoLogFile = "auto"

var slogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds a text logger on stdout, tee'd to the configured log
// file. The returned func closes the file.
func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}

	if path := logFilePath(cfg.File, time.Now()); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slogLevels[cfg.Level],
	}))
	return logger, closeFn, nil
}

func logFilePath(file string, now time.Time) string {
	if file == autoLogFile {
		return fmt.Sprintf("portal-relay-%d.log", now.Unix())
	}
	return file
}

func newPortalConfig(cfg config.PortalConfig) portal.Config {
	return portal.Config{
		AuthURL:       cfg.AuthURL,
		BaseURL:       cfg.BaseURL,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.RequestTimeout,
		RetryDelay:    cfg.RetryDelay,
		LoginAttempts: cfg.LoginAttempts,
	}
}

// transportFactory returns the mail transport constructor for the
// configured transport. Gmail authenticates with OAuth2, so only the
// account name is taken from the credentials.
func transportFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) credentials.TransportFactory {
	if cfg.Mail.Transport == config.TransportGmail {
		return func(username, _ string) (email.Transport, error) {
			return email.NewGmailTransport(ctx, &email.GmailConfig{
				ClientID:     cfg.Gmail.ClientID,
				ClientSecret: cfg.Gmail.ClientSecret,
				RefreshToken: cfg.Gmail.RefreshToken,
				AccessToken:  cfg.Gmail.AccessToken,
				UserEmail:    username,
			}, logger)
		}
	}

	return func(username, password string) (email.Transport, error) {
		return email.NewSMTPTransport(email.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: username,
			Password: password,
			Security: cfg.Mail.SMTPSecurity,
		}, logger), nil
	}
}

type credentialSource int

const (
	sourcePrompt credentialSource = iota
	sourceEnv
	sourceFlags
	sourceKeyring
)

func (o options) source() credentialSource {
	switch {
	case o.useEnv:
		return sourceEnv
	case o.noInput:
		return sourceFlags
	case o.useKeyring:
		return sourceKeyring
	default:
		return sourcePrompt
	}
}

// resolveCredentials reads credentials from the selected source. Prompted
// credentials are checked while typing; the others are validated once
// behind a spinner.
func resolveCredentials(ctx context.Context, cfg *config.Config, validator *credentials.Validator, out *cli.Output, logger *slog.Logger) (credentials.Credentials, error) {
	var (
		creds credentials.Credentials
		err   error
	)

	switch opts.source() {
	case sourcePrompt:
		out.PrintInfo("Enter your email and JSOS credentials")
		return credentials.NewPrompter(logger).Collect(ctx, validator.CheckMail, validator.CheckPortal)
	case sourceEnv:
		creds, err = credentials.FromEnv()
	case sourceFlags:
		creds, err = credentials.FromFlags(opts.portalUsername, opts.portalPassword, opts.mailUsername, opts.mailPassword)
	case sourceKeyring:
		var store *credentials.Store
		store, err = credentials.OpenStore(storeConfig(cfg.Keyring))
		if err == nil {
			creds, err = store.Load()
		}
	}
	if err != nil {
		return credentials.Credentials{}, err
	}

	logger.Debug("Credentials loaded", "credentials", creds.String())

	err = cli.Run("Checking credentials", opts.noColor, func() error {
		return validator.Validate(ctx, creds)
	})
	if err != nil {
		return credentials.Credentials{}, err
	}
	return creds, nil
}

func storeConfig(cfg config.KeyringConfig) credentials.StoreConfig {
	return credentials.StoreConfig{
		Backend: cfg.Backend,
		FileDir: cfg.FileDir,
	}
}

func rememberCredentials(cfg config.KeyringConfig, creds credentials.Credentials) error {
	store, err := credentials.OpenStore(storeConfig(cfg))
	if err != nil {
		return err
	}
	return store.Save(creds)
}
