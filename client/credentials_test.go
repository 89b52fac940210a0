package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentials(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "valid",
			content: `{"user_id":"0b0c5f7e-3d0a-4c4e-9a52-5d7d7c1e2f10","api_key":"secret","name":"demo"}`,
		},
		{
			name:    "malformed",
			content: `{"user_id":`,
			wantErr: ErrCredentialsInvalid,
		},
		{
			name:    "missing key",
			content: `{"user_id":"0b0c5f7e-3d0a-4c4e-9a52-5d7d7c1e2f10"}`,
			wantErr: ErrCredentialsInvalid,
		},
		{
			name:    "missing user",
			content: `{"api_key":"secret"}`,
			wantErr: ErrCredentialsInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "credentials.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			creds, err := LoadCredentials(path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "secret", creds.APIKey)
			assert.Equal(t, "demo", creds.Name)
		})
	}
}

func TestLoadCredentials_NotFound(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestDefaultCredentialPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv("HOME", "/home/someone")

	path := DefaultCredentialPath()
	assert.Equal(t, "credentials.json", filepath.Base(path))
	assert.Equal(t, "pantry", filepath.Base(filepath.Dir(path)))
}

func TestWriteCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	creds := &Credentials{UserID: uuid.New(), APIKey: "secret", Name: "demo"}

	require.NoError(t, WriteCredentials(path, creds))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, creds, loaded)
}

func TestWriteCredentials_TightensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	require.NoError(t, WriteCredentials(path, &Credentials{UserID: uuid.New(), APIKey: "k"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoginWithCredentials(t *testing.T) {
	id := uuid.New()
	c, err := LoginWithCredentials(&Credentials{UserID: id, APIKey: "k"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, id, c.UserID)

	_, err = LoginWithCredentials(&Credentials{UserID: id})
	assert.ErrorIs(t, err, ErrCredentialsInvalid)
}

func TestClient_Credentials(t *testing.T) {
	id := uuid.New()
	c := Login(id, "k")
	defer c.Close()

	assert.Equal(t, Credentials{UserID: id, APIKey: "k", Name: "demo"}, c.Credentials("demo"))
}
