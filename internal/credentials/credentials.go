package credentials

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

var (
	// ErrMissingCredentials means a source did not provide all four values
	ErrMissingCredentials = errors.New("credentials: no data provided")

	// ErrInvalidCredentials means the portal or the mail server rejected
	// the credentials
	ErrInvalidCredentials = errors.New("credentials: wrong credentials")
)

// Credentials are the portal and mail accounts the relay runs as
type Credentials struct {
	PortalUsername string `envconfig:"JSOS_USERNAME"`
	PortalPassword string `envconfig:"JSOS_PASSWORD"`
	MailUsername   string `envconfig:"EMAIL_USERNAME"`
	MailPassword   string `envconfig:"EMAIL_PASSWORD"`
}

// Complete reports whether every value is set
func (c Credentials) Complete() bool {
	return c.PortalUsername != "" && c.PortalPassword != "" &&
		c.MailUsername != "" && c.MailPassword != ""
}

// String hides both passwords
func (c Credentials) String() string {
	return fmt.Sprintf("portal=%s:%s mail=%s:%s",
		c.PortalUsername, redact(c.PortalPassword),
		c.MailUsername, redact(c.MailPassword))
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// FromEnv reads JSOS_USERNAME, JSOS_PASSWORD, EMAIL_USERNAME and
// EMAIL_PASSWORD
func FromEnv() (Credentials, error) {
	var c Credentials
	if err := envconfig.Process("", &c); err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from environment: %w", err)
	}
	if !c.Complete() {
		return Credentials{}, fmt.Errorf("%w: set JSOS_USERNAME, JSOS_PASSWORD, EMAIL_USERNAME and EMAIL_PASSWORD", ErrMissingCredentials)
	}
	return c, nil
}

// FromFlags uses values given on the command line
func FromFlags(portalUsername, portalPassword, mailUsername, mailPassword string) (Credentials, error) {
	c := Credentials{
		PortalUsername: portalUsername,
		PortalPassword: portalPassword,
		MailUsername:   mailUsername,
		MailPassword:   mailPassword,
	}
	if !c.Complete() {
		return Credentials{}, fmt.Errorf("%w: --jsos-usr, --jsos-pwd, --email and --email-pwd are required", ErrMissingCredentials)
	}
	return c, nil
}
