package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Mail transports
const (
	TransportSMTP  = "smtp"
	TransportGmail = "gmail"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Config holds all relay configuration
type Config struct {
	Portal  PortalConfig  `json:"portal"`
	Relay   RelayConfig   `json:"relay"`
	Mail    MailConfig    `json:"mail"`
	Gmail   GmailConfig   `json:"gmail"`
	Log     LogConfig     `json:"log"`
	Status  StatusConfig  `json:"status"`
	Keyring KeyringConfig `json:"keyring"`
}

// PortalConfig holds portal endpoints and login behaviour
type PortalConfig struct {
	AuthURL        string        `json:"auth_url"`
	BaseURL        string        `json:"base_url"`
	UserAgent      string        `json:"user_agent"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RetryDelay     time.Duration `json:"retry_delay"`
	LoginAttempts  int           `json:"login_attempts"`
}

// RelayConfig holds polling loop settings
type RelayConfig struct {
	WaitTime    time.Duration `json:"wait_time"`
	MaxMessages int           `json:"max_messages"`
	OnlyUnread  bool          `json:"only_unread"`
	Recipient   string        `json:"recipient"`
}

// MailConfig holds outbound mail settings
type MailConfig struct {
	Transport    string `json:"transport"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPSecurity string `json:"smtp_security"`
	FromAddress  string `json:"from_address"`
}

// GmailConfig holds Gmail API OAuth2 settings
type GmailConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// StatusConfig holds the optional status endpoint
type StatusConfig struct {
	Addr string `json:"addr"`
}

// KeyringConfig holds credential store settings
type KeyringConfig struct {
	Backend string `json:"backend"`
	FileDir string `json:"file_dir"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"portal auth_url": c.Portal.AuthURL, "portal base_url": c.Portal.BaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.Portal.RequestTimeout <= 0 {
		return fmt.Errorf("portal request_timeout must be positive")
	}

	if c.Portal.RetryDelay < 0 {
		return fmt.Errorf("portal retry_delay must be non-negative")
	}

	if c.Portal.LoginAttempts < 1 || c.Portal.LoginAttempts > 100 {
		return fmt.Errorf("portal login_attempts must be between 1 and 100")
	}

	if c.Relay.WaitTime < time.Second {
		return fmt.Errorf("relay wait_time must be at least 1 second")
	}

	if c.Relay.MaxMessages < 0 {
		return fmt.Errorf("relay max_messages must be non-negative")
	}

	switch c.Mail.Transport {
	case TransportSMTP:
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("mail smtp_host cannot be empty")
		}
		if c.Mail.SMTPPort < 1 || c.Mail.SMTPPort > 65535 {
			return fmt.Errorf("mail smtp_port must be between 1 and 65535")
		}
	case TransportGmail:
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" {
			return fmt.Errorf("gmail client_id and client_secret are required for the gmail transport")
		}
		if c.Gmail.RefreshToken == "" && c.Gmail.AccessToken == "" {
			return fmt.Errorf("gmail refresh_token or access_token is required for the gmail transport")
		}
	default:
		return fmt.Errorf("invalid mail transport: %s (must be one of: %v)", c.Mail.Transport, []string{TransportSMTP, TransportGmail})
	}

	if c.Mail.FromAddress == "" {
		return fmt.Errorf("mail from_address cannot be empty")
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.Log.Level, logLevels)
	}

	return nil
}

// ToJSON serializes the configuration to JSON with secrets redacted
func (c *Config) ToJSON() (string, error) {
	safe := *c
	safe.Gmail.ClientSecret = redact(safe.Gmail.ClientSecret)
	safe.Gmail.RefreshToken = redact(safe.Gmail.RefreshToken)
	safe.Gmail.AccessToken = redact(safe.Gmail.AccessToken)

	data, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}
