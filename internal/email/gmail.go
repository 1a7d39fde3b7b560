package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailTransport sends composed messages through the Gmail API
type GmailTransport struct {
	service *gmail.Service
	userID  string
	logger  *slog.Logger
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	UserEmail    string

	// Endpoint overrides the API base URL
	Endpoint string

	// HTTPClient replaces the OAuth2 client; used as is
	HTTPClient *http.Client
}

func validateGmailConfig(config *GmailConfig) error {
	if config == nil {
		return errors.New("gmail config is required")
	}
	if config.HTTPClient != nil {
		return nil
	}
	if config.ClientID == "" {
		return errors.New("gmail client ID is required")
	}
	if config.ClientSecret == "" {
		return errors.New("gmail client secret is required")
	}
	if config.RefreshToken == "" && config.AccessToken == "" {
		return errors.New("gmail refresh token or access token is required")
	}
	return nil
}

// NewGmailTransport creates a Gmail API transport
func NewGmailTransport(ctx context.Context, config *GmailConfig, logger *slog.Logger) (*GmailTransport, error) {
	if err := validateGmailConfig(config); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		oauthConfig := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       []string{gmail.GmailSendScope},
			Endpoint:     google.Endpoint,
		}

		token := &oauth2.Token{
			AccessToken:  config.AccessToken,
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		httpClient = oauthConfig.Client(ctx, token)
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userID := "me"
	if config.UserEmail != "" {
		userID = config.UserEmail
	}

	return &GmailTransport{
		service: service,
		userID:  userID,
		logger:  logger,
	}, nil
}

// Send uploads the raw message. Gmail takes recipients from the headers,
// so from and to are only logged.
func (g *GmailTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	raw := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(msg)}

	sent, err := g.service.Users.Messages.Send(g.userID, raw).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send failed: %w", err)
	}

	g.logger.Debug("Gmail message sent", "id", sent.Id, "from", from, "recipients", len(to))
	return nil
}

// Verify checks the Gmail connection is working
func (g *GmailTransport) Verify(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}

	g.logger.Info("Connected to Gmail account", "email", profile.EmailAddress)
	return nil
}

// Close is a no-op; the API client holds no connection of its own
func (g *GmailTransport) Close() error {
	return nil
}
