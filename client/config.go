package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/pantrykit/transport"
)

// ErrUnknownConfigFormat is returned for config files that are not YAML, TOML
// or JSON.
var ErrUnknownConfigFormat = errors.New("unknown config format")

// FileConfig is the on-disk client configuration. Unset keys keep their
// defaults; an address set to "" or "off" disables that channel.
//
//	socket_path: /tmp/pantrylocal.sock
//	base_url: off
//	local_dial_timeout: 500ms
//	credentials: ~/.config/pantry/credentials.json
type FileConfig struct {
	SocketPath       *string `json:"socket_path" yaml:"socket_path" toml:"socket_path"`
	BaseURL          *string `json:"base_url" yaml:"base_url" toml:"base_url"`
	LocalDialTimeout string  `json:"local_dial_timeout" yaml:"local_dial_timeout" toml:"local_dial_timeout"`
	Credentials      string  `json:"credentials" yaml:"credentials" toml:"credentials"`
}

// LoadConfig reads a config file. The format follows the extension: .yaml or
// .yml, .toml, or .json.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".json":
		err = json.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConfigFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

// Apply returns base with the file's settings applied on top, validated.
func (fc *FileConfig) Apply(base transport.Config) (transport.Config, error) {
	cfg := base
	if fc.SocketPath != nil {
		cfg.SocketPath = transport.Address(*fc.SocketPath)
	}
	if fc.BaseURL != nil {
		cfg.BaseURL = transport.Address(*fc.BaseURL)
	}
	if fc.LocalDialTimeout != "" {
		d, err := time.ParseDuration(fc.LocalDialTimeout)
		if err != nil {
			return base, fmt.Errorf("local_dial_timeout: %w", err)
		}
		cfg.LocalDialTimeout = d
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// CredentialPath returns the configured credentials path with a leading ~
// expanded, or "" when unset.
func (fc *FileConfig) CredentialPath() string {
	p := fc.Credentials
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
