package credentials

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "portal-relay"

// Keyring item keys
const (
	keyPortalUsername = "jsos-username"
	keyPortalPassword = "jsos-password"
	keyMailUsername   = "email-username"
	keyMailPassword   = "email-password"
)

// StoreConfig configures the OS keyring backing a Store
type StoreConfig struct {
	// Backend restricts the keyring to one backend, e.g. "file" or
	// "secret-service". Empty allows every supported backend.
	Backend string

	// FileDir is where the file backend keeps its items
	FileDir string
}

// Store keeps credentials in the OS keyring
type Store struct {
	ring keyring.Keyring
}

// OpenStore opens the OS keyring
func OpenStore(config StoreConfig) (*Store, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if config.Backend != "" {
		backends = []keyring.BackendType{keyring.BackendType(config.Backend)}
	}

	fileDir := config.FileDir
	if fileDir == "" {
		fileDir = "~/.config/portal-relay/credentials"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("portal-relay-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// NewStore wraps an open keyring
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func (s *Store) items(c *Credentials) map[string]*string {
	return map[string]*string{
		keyPortalUsername: &c.PortalUsername,
		keyPortalPassword: &c.PortalPassword,
		keyMailUsername:   &c.MailUsername,
		keyMailPassword:   &c.MailPassword,
	}
}

// Save stores all four values
func (s *Store) Save(c Credentials) error {
	if !c.Complete() {
		return ErrMissingCredentials
	}

	for key, value := range s.items(&c) {
		err := s.ring.Set(keyring.Item{
			Key:   key,
			Data:  []byte(*value),
			Label: "portal-relay " + key,
		})
		if err != nil {
			return fmt.Errorf("setting credential %q: %w", key, err)
		}
	}
	return nil
}

// Load reads stored credentials. A missing item yields
// ErrMissingCredentials.
func (s *Store) Load() (Credentials, error) {
	var c Credentials

	for key, value := range s.items(&c) {
		item, err := s.ring.Get(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Credentials{}, fmt.Errorf("%w: %s not in keyring", ErrMissingCredentials, key)
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("getting credential %q: %w", key, err)
		}
		*value = string(item.Data)
	}

	return c, nil
}

// Delete removes all stored values; missing items are ignored
func (s *Store) Delete() error {
	var c Credentials
	for key := range s.items(&c) {
		if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}
	return nil
}
