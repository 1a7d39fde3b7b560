// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"portal-relay/internal/cli"
	"portal-relay/internal/config"
	"portal-relay/internal/credentials"
	"portal-relay/internal/email"
	"portal-relay/internal/portal"
	"portal-relay/internal/relay"
	"portal-relay/internal/server"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

// options holds the values of the command line flags
type options struct {
	configFile string
	envFile    string

	interactive bool
	useEnv      bool
	noInput     bool
	useKeyring  bool
	remember    bool

	portalUsername string
	portalPassword string
	mailUsername   string
	mailPassword   string

	all     bool
	once    bool
	noColor bool
	quiet   bool
}

var opts options

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "portal-relay",
	Short: "Relay unread JSOS messages to your mailbox",
	Long: `portal-relay logs in to the JSOS student portal at a fixed interval,
collects unread messages and sends each one to your mailbox.

CREDENTIALS:
    By default both accounts are asked for interactively and checked
    before the relay starts. Use one of:

        -e, --useenv      read JSOS_USERNAME, JSOS_PASSWORD, EMAIL_USERNAME
                          and EMAIL_PASSWORD from the environment
        -n, --no-input    take --jsos-usr, --jsos-pwd, --email and
                          --email-pwd from the command line
        --keyring         load credentials saved with --remember

CONFIGURATION:
    Settings are read from portal-relay.{yaml,toml,json}, a .env file and
    PORTAL_RELAY_* environment variables, e.g.

        PORTAL_RELAY_RELAY_WAIT_TIME    seconds between checks (default 240)
        PORTAL_RELAY_MAIL_TRANSPORT     smtp or gmail (default smtp)
        PORTAL_RELAY_STATUS_ADDR        serve /health and /api/status

EXAMPLES:
    portal-relay
    portal-relay -e -w 600
    portal-relay -n --jsos-usr 123456 --jsos-pwd secret --email me@gmail.com --email-pwd app-pass
    portal-relay -e --remember && portal-relay --keyring --status-addr :8080`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRelay,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()

	flags.IntP("wait-time", "w", 240, "seconds between checks for new messages")
	flags.BoolVarP(&opts.interactive, "input", "i", true, "ask for credentials interactively")
	flags.BoolVarP(&opts.useEnv, "useenv", "e", false, "read credentials from environment variables")
	flags.BoolVarP(&opts.noInput, "no-input", "n", false, "read credentials from flags only")
	flags.BoolVar(&opts.useKeyring, "keyring", false, "load credentials from the OS keyring")
	flags.BoolVar(&opts.remember, "remember", false, "save validated credentials in the OS keyring")

	flags.StringVar(&opts.portalUsername, "jsos-usr", "", "JSOS username")
	flags.StringVar(&opts.portalPassword, "jsos-pwd", "", "JSOS password")
	flags.StringVar(&opts.mailUsername, "email", "", "email address")
	flags.StringVar(&opts.mailPassword, "email-pwd", "", "email password")

	flags.Int("max-messages", 3, "messages relayed per check (one more is allowed)")
	flags.BoolVar(&opts.all, "all", false, "relay the newest messages even when already read")
	flags.BoolVar(&opts.once, "once", false, "check once and exit")
	flags.String("status-addr", "", "serve relay status on this address")

	rootCmd.MarkFlagsMutuallyExclusive("useenv", "no-input", "keyring")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&opts.configFile, "config", "", "config file (default is portal-relay.yaml)")
	persistent.StringVar(&opts.envFile, "env-file", "", "env file (default is .env in current directory)")
	persistent.String("log-level", "info", "log level (debug, info, warn, error)")
	persistent.String("log-file", "", "also write logs to this file; \"auto\" picks a timestamped name")
	persistent.BoolVar(&opts.noColor, "no-color", false, "disable color output")
	persistent.BoolVarP(&opts.quiet, "quiet", "q", false, "quiet mode (minimal output)")

	rootCmd.AddCommand(forgetCmd)
}

// flagBindings maps config keys to the flags that override them
var flagBindings = map[string]string{
	"relay.wait_time":    "wait-time",
	"relay.max_messages": "max-messages",
	"status.addr":        "status-addr",
	"log.level":          "log-level",
	"log.file":           "log-file",
}

// loadConfiguration loads config with command line overrides applied
func loadConfiguration(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	for key, name := range flagBindings {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if opts.configFile != "" {
		v.SetConfigFile(opts.configFile)
	}

	cfg, err := config.Load(v, opts.envFile)
	if err != nil {
		return nil, err
	}

	if opts.all {
		cfg.Relay.OnlyUnread = false
	}
	return cfg, nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	out := cli.NewOutput(opts.noColor, opts.quiet)

	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("Starting portal relay",
		"version", Version,
		"build_date", BuildDate)

	if configJSON, err := cfg.ToJSON(); err == nil {
		logger.Debug("Configuration details", "config", configJSON)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	portalConfig := newPortalConfig(cfg.Portal)
	newTransport := transportFactory(ctx, cfg, logger)
	validator := credentials.NewValidator(portalConfig, newTransport, logger)

	creds, err := resolveCredentials(ctx, cfg, validator, out, logger)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			out.PrintWarning("Wrong credentials, check them and try again")
		}
		return err
	}
	out.PrintSuccess("Credentials accepted for %s", creds.MailUsername)

	if opts.remember {
		if err := rememberCredentials(cfg.Keyring, creds); err != nil {
			out.PrintWarning("Credentials not saved: %v", err)
		} else {
			out.PrintInfo("Credentials saved in the OS keyring")
		}
	}

	r := relay.New(
		relay.Config{
			WaitTime:    cfg.Relay.WaitTime,
			MaxMessages: cfg.Relay.MaxMessages,
			OnlyUnread:  cfg.Relay.OnlyUnread,
			Recipient:   cfg.Relay.Recipient,
			Once:        opts.once,
		},
		func() (relay.Portal, error) {
			gateway, err := portal.NewGateway(portalConfig, creds.PortalUsername, creds.PortalPassword, logger)
			if err != nil {
				return nil, err
			}
			return gateway, nil
		},
		func(ctx context.Context) (relay.Sink, error) {
			transport, err := newTransport(creds.MailUsername, creds.MailPassword)
			if err != nil {
				return nil, err
			}
			return email.NewMailer(email.MailerConfig{
				Account:     creds.MailUsername,
				FromAddress: cfg.Mail.FromAddress,
			}, transport, logger), nil
		},
		logger,
	)

	if cfg.Status.Addr != "" {
		srv, err := server.New(cfg.Status.Addr, r.Metrics(), logger)
		if err != nil {
			return err
		}
		srv.Start()
		defer func() {
			if err := srv.Shutdown(server.DefaultShutdownTimeout); err != nil {
				out.PrintError(err)
			}
		}()
		out.PrintInfo("Status available at http://%s/api/status", srv.Addr())
	}

	out.PrintInfo("Checking for new messages every %s", cfg.Relay.WaitTime)

	if err := r.Run(ctx); err != nil {
		if errors.Is(err, relay.ErrInterrupted) {
			out.PrintInfo("Interrupted, exiting")
			logger.Info("Portal relay stopped")
			return err
		}
		return err
	}

	logger.Info("Portal relay stopped")
	return nil
}
