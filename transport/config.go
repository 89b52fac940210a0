package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Default endpoints of a pantry server.
const (
	DefaultSocketPath       = "/tmp/pantrylocal.sock"
	DefaultBaseURL          = "http://localhost:9404"
	DefaultLocalDialTimeout = 2 * time.Second
)

// Config holds dispatcher configuration. Both addresses are trusted to
// reach the same server.
type Config struct {
	// SocketPath is the unix socket tried first.
	// Empty disables the local channel.
	SocketPath string `json:"socket_path" yaml:"socket_path" toml:"socket_path"`

	// BaseURL is the HTTP address used when the socket fails.
	// Empty disables the network channel.
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`

	// LocalDialTimeout bounds connecting to the socket. It is the only
	// timeout on the local channel; streams may run indefinitely.
	// Default: 2 seconds.
	LocalDialTimeout time.Duration `json:"local_dial_timeout" yaml:"local_dial_timeout" toml:"local_dial_timeout"`
}

// DefaultConfig returns a Config pointing at a pantry server on this host.
func DefaultConfig() Config {
	return Config{
		SocketPath:       DefaultSocketPath,
		BaseURL:          DefaultBaseURL,
		LocalDialTimeout: DefaultLocalDialTimeout,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SocketPath == "" && c.BaseURL == "" {
		return fmt.Errorf("at least one of socket_path and base_url is required")
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base_url scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("base_url %q has no host", c.BaseURL)
		}
	}

	if c.LocalDialTimeout < 0 {
		return fmt.Errorf("local_dial_timeout must be >= 0, got %v", c.LocalDialTimeout)
	}

	return nil
}

// WithDefaults returns a copy of the config with defaults applied for unset
// fields. Addresses are left alone so an empty one keeps its channel
// disabled.
func (c Config) WithDefaults() Config {
	if c.LocalDialTimeout == 0 {
		c.LocalDialTimeout = DefaultLocalDialTimeout
	}
	return c
}

// LoadFromEnv populates config fields from environment variables.
// Environment variables use the PANTRY_ prefix and take precedence over
// existing values.
//
// Supported variables:
//   - PANTRY_SOCKET_PATH: unix socket path ("off" disables the local channel)
//   - PANTRY_BASE_URL: network base URL ("off" disables the network channel)
//   - PANTRY_LOCAL_DIAL_TIMEOUT: dial timeout duration (e.g., "500ms")
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("PANTRY_SOCKET_PATH"); v != "" {
		c.SocketPath = Address(v)
	}
	if v := os.Getenv("PANTRY_BASE_URL"); v != "" {
		c.BaseURL = Address(v)
	}
	if v := os.Getenv("PANTRY_LOCAL_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LocalDialTimeout = d
		}
	}
}

// Address normalizes a configured address. The value "off" disables the
// channel and becomes the empty string.
func Address(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

// FromEnv creates a Config from environment variables with defaults.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	return cfg
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSocketPath sets the unix socket path. Empty disables the local channel.
func WithSocketPath(path string) Option {
	return func(d *Dispatcher) { d.cfg.SocketPath = path }
}

// WithBaseURL sets the network base URL. Empty disables the network channel.
func WithBaseURL(baseURL string) Option {
	return func(d *Dispatcher) { d.cfg.BaseURL = baseURL }
}

// WithLocalDialTimeout sets the socket dial timeout.
func WithLocalDialTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.cfg.LocalDialTimeout = timeout }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithNetworkClient replaces the HTTP client used for the network channel.
func WithNetworkClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.network = client }
}
