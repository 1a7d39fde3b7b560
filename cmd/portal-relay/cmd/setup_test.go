package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-relay/internal/config"
	"portal-relay/internal/email"
)

func TestLogFilePath(t *testing.T) {
	now := time.Unix(1718000000, 0)

	assert.Equal(t, "", logFilePath("", now))
	assert.Equal(t, "relay.log", logFilePath("relay.log", now))
	assert.Equal(t, "portal-relay-1718000000.log", logFilePath("auto", now))
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	logger, closeLog, err := newLogger(config.LogConfig{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("Sleeping", "seconds", 240)
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "msg=Sleeping seconds=240")
}

func TestNewLogger_BadPath(t *testing.T) {
	_, _, err := newLogger(config.LogConfig{Level: "info", File: filepath.Join(t.TempDir(), "missing", "relay.log")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestOptionsSource(t *testing.T) {
	tests := []struct {
		name string
		opts options
		want credentialSource
	}{
		{"default prompts", options{interactive: true}, sourcePrompt},
		{"environment", options{interactive: true, useEnv: true}, sourceEnv},
		{"flags only", options{interactive: true, noInput: true}, sourceFlags},
		{"keyring", options{interactive: true, useKeyring: true}, sourceKeyring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.source())
		})
	}
}

func TestNewPortalConfig(t *testing.T) {
	cfg := newPortalConfig(config.PortalConfig{
		AuthURL:        "https://oauth.example.com",
		BaseURL:        "https://portal.example.com",
		UserAgent:      "relay-test",
		RequestTimeout: 5 * time.Second,
		RetryDelay:     time.Second,
		LoginAttempts:  4,
	})

	assert.Equal(t, "https://oauth.example.com", cfg.AuthURL)
	assert.Equal(t, "https://portal.example.com", cfg.BaseURL)
	assert.Equal(t, "relay-test", cfg.UserAgent)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 4, cfg.LoginAttempts)
}

func TestTransportFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("smtp", func(t *testing.T) {
		cfg := &config.Config{Mail: config.MailConfig{
			Transport:    config.TransportSMTP,
			SMTPHost:     "127.0.0.1",
			SMTPPort:     2525,
			SMTPSecurity: email.SecurityNone,
		}}

		transport, err := transportFactory(context.Background(), cfg, logger)("me@example.com", "secret")

		require.NoError(t, err)
		assert.IsType(t, &email.SMTPTransport{}, transport)
	})

	t.Run("gmail without oauth settings", func(t *testing.T) {
		cfg := &config.Config{Mail: config.MailConfig{Transport: config.TransportGmail}}

		_, err := transportFactory(context.Background(), cfg, logger)("me@gmail.com", "")

		assert.Error(t, err)
	})
}

func TestLoadConfiguration_FlagOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntP("wait-time", "w", 240, "")
	cmd.Flags().Int("max-messages", 3, "")
	cmd.Flags().String("status-addr", "", "")
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("log-file", "", "")

	require.NoError(t, cmd.Flags().Set("wait-time", "600"))
	require.NoError(t, cmd.Flags().Set("status-addr", "127.0.0.1:8080"))

	saved := opts
	t.Cleanup(func() { opts = saved })
	opts = options{all: true}

	cfg, err := loadConfiguration(cmd)
	require.NoError(t, err)

	assert.Equal(t, 600*time.Second, cfg.Relay.WaitTime)
	assert.Equal(t, 3, cfg.Relay.MaxMessages)
	assert.Equal(t, "127.0.0.1:8080", cfg.Status.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Relay.OnlyUnread)
}
