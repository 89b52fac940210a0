package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Credential errors.
var (
	// ErrCredentialsNotFound indicates no credentials file was found.
	ErrCredentialsNotFound = errors.New("credentials file not found")

	// ErrCredentialsInvalid indicates the credentials file is malformed.
	ErrCredentialsInvalid = errors.New("invalid credentials format")
)

// Credentials identify a pantry user. The API key is the only secret; keep
// the file private.
type Credentials struct {
	UserID uuid.UUID `json:"user_id"`
	APIKey string    `json:"api_key"`

	// Name is the name given at registration, for display only.
	Name string `json:"name,omitempty"`
}

// DefaultCredentialPath returns ~/.config/pantry/credentials.json.
func DefaultCredentialPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pantry", "credentials.json")
}

// LoadCredentials reads credentials from path, or from
// DefaultCredentialPath when path is empty.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		path = DefaultCredentialPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, path)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialsInvalid, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Validate checks that the credentials have required fields.
func (c *Credentials) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user id", ErrCredentialsInvalid)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: missing api key", ErrCredentialsInvalid)
	}
	return nil
}

// WriteCredentials writes creds to path (DefaultCredentialPath when empty)
// readable only by the owner.
func WriteCredentials(path string, creds *Credentials) error {
	if path == "" {
		path = DefaultCredentialPath()
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict credentials: %w", err)
	}
	return nil
}

// LoginWithCredentials returns a Client for stored credentials.
func LoginWithCredentials(creds *Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return Login(creds.UserID, creds.APIKey, opts...), nil
}
