package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PORTAL_RELAY"

// Load reads configuration from an env file, the environment and an
// optional config file. An empty envFile loads ./.env when present.
// Variables already set in the environment take precedence over the env
// file.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	setDefaults(v)
	setupEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadEnvFile(envFile string) error {
	if envFile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.auth_url", "https://oauth.pwr.edu.pl")
	v.SetDefault("portal.base_url", "https://jsos.pwr.edu.pl")
	v.SetDefault("portal.user_agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	v.SetDefault("portal.request_timeout", "30s")
	v.SetDefault("portal.retry_delay", "10s")
	v.SetDefault("portal.login_attempts", 10)

	v.SetDefault("relay.wait_time", "240s")
	v.SetDefault("relay.max_messages", 3)
	v.SetDefault("relay.only_unread", true)
	v.SetDefault("relay.recipient", "")

	v.SetDefault("mail.transport", TransportSMTP)
	v.SetDefault("mail.smtp_host", "smtp.gmail.com")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.smtp_security", "starttls")
	v.SetDefault("mail.from_address", "jsos_bot@pwr.edu.pl")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("status.addr", "")

	v.SetDefault("keyring.backend", "")
	v.SetDefault("keyring.file_dir", "")
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names shared with the Gmail token helper
	gmailBindings := map[string]string{
		"gmail.client_id":     "GMAIL_CLIENT_ID",
		"gmail.client_secret": "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token": "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":  "GMAIL_ACCESS_TOKEN",
	}

	for configKey, envVar := range gmailBindings {
		v.BindEnv(configKey, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(configKey, ".", "_")), envVar)
	}
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.portal-relay")

		v.SetConfigName("portal-relay")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}

	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	var err error

	config.Portal.AuthURL = strings.TrimRight(v.GetString("portal.auth_url"), "/")
	config.Portal.BaseURL = strings.TrimRight(v.GetString("portal.base_url"), "/")
	config.Portal.UserAgent = v.GetString("portal.user_agent")
	config.Portal.LoginAttempts = v.GetInt("portal.login_attempts")

	config.Portal.RequestTimeout, err = time.ParseDuration(v.GetString("portal.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid portal request timeout: %w", err)
	}

	config.Portal.RetryDelay, err = time.ParseDuration(v.GetString("portal.retry_delay"))
	if err != nil {
		return fmt.Errorf("invalid portal retry delay: %w", err)
	}

	config.Relay.WaitTime, err = parseSeconds(v.GetString("relay.wait_time"))
	if err != nil {
		return fmt.Errorf("invalid relay wait time: %w", err)
	}

	config.Relay.MaxMessages = v.GetInt("relay.max_messages")
	config.Relay.OnlyUnread = v.GetBool("relay.only_unread")
	config.Relay.Recipient = v.GetString("relay.recipient")

	config.Mail.Transport = strings.ToLower(v.GetString("mail.transport"))
	config.Mail.SMTPHost = v.GetString("mail.smtp_host")
	config.Mail.SMTPPort = v.GetInt("mail.smtp_port")
	config.Mail.SMTPSecurity = strings.ToLower(v.GetString("mail.smtp_security"))
	config.Mail.FromAddress = v.GetString("mail.from_address")

	config.Gmail.ClientID = v.GetString("gmail.client_id")
	config.Gmail.ClientSecret = v.GetString("gmail.client_secret")
	config.Gmail.RefreshToken = v.GetString("gmail.refresh_token")
	config.Gmail.AccessToken = v.GetString("gmail.access_token")

	config.Log.Level = strings.ToLower(v.GetString("log.level"))
	config.Log.File = v.GetString("log.file")

	config.Status.Addr = v.GetString("status.addr")

	config.Keyring.Backend = v.GetString("keyring.backend")
	config.Keyring.FileDir = v.GetString("keyring.file_dir")

	return nil
}

// parseSeconds accepts a Go duration or a bare number of seconds
func parseSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	secs, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", s)
	}
	return time.Duration(secs) * time.Second, nil
}
