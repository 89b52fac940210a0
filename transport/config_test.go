package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "/tmp/pantrylocal.sock", cfg.SocketPath)
	assert.Equal(t, "http://localhost:9404", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.LocalDialTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "socket only",
			cfg:  Config{SocketPath: "/tmp/p.sock"},
		},
		{
			name: "network only",
			cfg:  Config{BaseURL: "https://pantry.lan:9404"},
		},
		{
			name:    "no channels",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name:    "bad scheme",
			cfg:     Config{BaseURL: "ftp://localhost:9404"},
			wantErr: true,
		},
		{
			name:    "missing host",
			cfg:     Config{BaseURL: "http://"},
			wantErr: true,
		},
		{
			name:    "negative dial timeout",
			cfg:     Config{SocketPath: "/tmp/p.sock", LocalDialTimeout: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost:9404"}.WithDefaults()

	assert.Equal(t, DefaultLocalDialTimeout, cfg.LocalDialTimeout)
	assert.Empty(t, cfg.SocketPath, "empty socket path keeps the local channel disabled")

	cfg = Config{LocalDialTimeout: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, cfg.LocalDialTimeout)
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("PANTRY_SOCKET_PATH", "/run/pantry.sock")
	t.Setenv("PANTRY_BASE_URL", "off")
	t.Setenv("PANTRY_LOCAL_DIAL_TIMEOUT", "250ms")

	cfg := FromEnv()
	assert.Equal(t, "/run/pantry.sock", cfg.SocketPath)
	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.LocalDialTimeout)
}

func TestConfig_LoadFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("PANTRY_LOCAL_DIAL_TIMEOUT", "soon")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	assert.Equal(t, DefaultLocalDialTimeout, cfg.LocalDialTimeout)
}

func TestNewDispatcherWithConfig(t *testing.T) {
	d := NewDispatcherWithConfig(Config{SocketPath: "/tmp/x.sock"}, WithBaseURL("http://127.0.0.1:9"))
	defer d.Close()

	cfg := d.Config()
	assert.Equal(t, "/tmp/x.sock", cfg.SocketPath)
	assert.Equal(t, "http://127.0.0.1:9", cfg.BaseURL)
	assert.Equal(t, DefaultLocalDialTimeout, cfg.LocalDialTimeout)
}
