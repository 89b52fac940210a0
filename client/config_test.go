package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/pantrykit/transport"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "pantry.yaml",
			content: `socket_path: /run/pantry.sock
base_url: off
local_dial_timeout: 500ms
credentials: /etc/pantry/creds.json
`,
		},
		{
			name: "toml",
			file: "pantry.toml",
			content: `socket_path = "/run/pantry.sock"
base_url = "off"
local_dial_timeout = "500ms"
credentials = "/etc/pantry/creds.json"
`,
		},
		{
			name:    "json",
			file:    "pantry.json",
			content: `{"socket_path":"/run/pantry.sock","base_url":"","local_dial_timeout":"500ms","credentials":"/etc/pantry/creds.json"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			require.NoError(t, err)

			cfg, err := fc.Apply(transport.DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, "/run/pantry.sock", cfg.SocketPath)
			assert.Empty(t, cfg.BaseURL)
			assert.Equal(t, 500*time.Millisecond, cfg.LocalDialTimeout)
			assert.Equal(t, "/etc/pantry/creds.json", fc.CredentialPath())
		})
	}
}

func TestLoadConfig_UnsetKeysKeepDefaults(t *testing.T) {
	fc, err := LoadConfig(writeConfig(t, "pantry.yml", "base_url: http://pantry.lan:9404\n"))
	require.NoError(t, err)

	cfg, err := fc.Apply(transport.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, transport.DefaultSocketPath, cfg.SocketPath)
	assert.Equal(t, "http://pantry.lan:9404", cfg.BaseURL)
	assert.Equal(t, transport.DefaultLocalDialTimeout, cfg.LocalDialTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "pantry.ini", "x=1"))
	assert.ErrorIs(t, err, ErrUnknownConfigFormat)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "bad.json", "{"))
	assert.Error(t, err)
}

func TestFileConfig_ApplyInvalid(t *testing.T) {
	off := "off"
	fc := &FileConfig{SocketPath: &off, BaseURL: &off}
	_, err := fc.Apply(transport.DefaultConfig())
	assert.Error(t, err, "both channels disabled")

	fc = &FileConfig{LocalDialTimeout: "soon"}
	_, err = fc.Apply(transport.DefaultConfig())
	assert.Error(t, err)
}

func TestFileConfig_CredentialPathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	fc := &FileConfig{Credentials: "~/pantry/creds.json"}
	assert.Equal(t, filepath.Join(home, "pantry", "creds.json"), fc.CredentialPath())

	assert.Empty(t, (&FileConfig{}).CredentialPath())
}
