// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "CUSTODY_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the custody service configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Service configures the socket server and its keypair.
	Service ServiceConfig `yaml:"service"`

	// Keystore configures where the keypair is kept.
	Keystore KeystoreConfig `yaml:"keystore"`

	// Peer names the one daemon allowed to connect.
	Peer PeerConfig `yaml:"peer"`

	// Log configures the service logger.
	Log LogConfig `yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment. Empty strings and zero numbers leave the base value;
// booleans are pointers so that false can be expressed.
type ConfigOverrides struct {
	Service  *ServiceOverrides `yaml:"service,omitempty"`
	Keystore *KeystoreConfig   `yaml:"keystore,omitempty"`
	Peer     *PeerConfig       `yaml:"peer,omitempty"`
	Log      *LogConfig        `yaml:"log,omitempty"`
	Metrics  *MetricsConfig    `yaml:"metrics,omitempty"`
}

// ServiceConfig configures the socket server.
type ServiceConfig struct {
	// Enabled gates the service. A disabled service is not started.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Alias names the keypair in the key store.
	// Default: encrypt_key
	Alias string `yaml:"alias"`

	// Owner lets this instance create the keypair when missing.
	// Default: false
	Owner bool `yaml:"owner"`

	// KeyBits is the RSA modulus size for a newly created keypair.
	// Default: 2048
	KeyBits int `yaml:"key_bits"`

	// SocketPath is a filesystem socket path. Empty selects the
	// abstract socket @encrypt_<uid>_<pid>.
	SocketPath string `yaml:"socket_path"`

	// ReadTimeout bounds the wait for a request after accept.
	// Default: 10s
	ReadTimeout string `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 10s
	WriteTimeout string `yaml:"write_timeout"`

	// Framing is "raw" (close ends the response) or "length" (4-byte
	// big-endian length prefix).
	// Default: raw
	Framing string `yaml:"framing"`
}

// ServiceOverrides mirrors ServiceConfig for environment sections.
type ServiceOverrides struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Alias        string `yaml:"alias,omitempty"`
	Owner        *bool  `yaml:"owner,omitempty"`
	KeyBits      int    `yaml:"key_bits,omitempty"`
	SocketPath   string `yaml:"socket_path,omitempty"`
	ReadTimeout  string `yaml:"read_timeout,omitempty"`
	WriteTimeout string `yaml:"write_timeout,omitempty"`
	Framing      string `yaml:"framing,omitempty"`
}

// KeystoreConfig configures the key store backend.
type KeystoreConfig struct {
	// Backend is "file" (sealed records on disk) or "memory" (the key
	// lives and dies with the process).
	// Default: file
	Backend string `yaml:"backend"`

	// Directory holds the sealed key records of the file backend.
	// Default: ${HOME}/.local/state/custody/keys
	Directory string `yaml:"directory"`

	// PassphraseFile holds the store passphrase. "-" reads it from
	// stdin. Empty prompts on the terminal.
	PassphraseFile string `yaml:"passphrase_file"`

	// ScryptWorkFactor is log2(N) for sealing new keys.
	// Default: 18
	ScryptWorkFactor int `yaml:"scrypt_work_factor"`
}

// PeerConfig names the daemon allowed to connect.
type PeerConfig struct {
	// Account is the daemon's user account.
	// Default: ecryptfs
	Account string `yaml:"account"`

	// Executable is the daemon's argv[0].
	// Default: /system/bin/ecryptfsd
	Executable string `yaml:"executable"`

	// ExecutableSHA256 optionally pins the daemon binary.
	ExecutableSHA256 string `yaml:"executable_sha256"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, json
	// otherwise).
	// Default: auto (development), json (production)
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a loopback host:port or an absolute unix socket path.
	// Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the configuration the file is merged into.
func Default() *Config {
	return &Config{
		Environment: Development,
		Service: ServiceConfig{
			Enabled:      true,
			Alias:        "encrypt_key",
			KeyBits:      2048,
			ReadTimeout:  "10s",
			WriteTimeout: "10s",
			Framing:      "raw",
		},
		Keystore: KeystoreConfig{
			Backend:          "file",
			Directory:        filepath.Join("${HOME}", ".local", "state", "custody", "keys"),
			ScryptWorkFactor: 18,
		},
		Peer: PeerConfig{
			Account:    "ecryptfs",
			Executable: "/system/bin/ecryptfsd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the CUSTODY_CONFIG environment
// variable. There is no fallback search: if the variable is not set,
// Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your custody.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// matching environment section, and expands ${VAR} references in
// paths. The result is not validated; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if service := overrides.Service; service != nil {
		if service.Enabled != nil {
			c.Service.Enabled = *service.Enabled
		}
		if service.Alias != "" {
			c.Service.Alias = service.Alias
		}
		if service.Owner != nil {
			c.Service.Owner = *service.Owner
		}
		if service.KeyBits != 0 {
			c.Service.KeyBits = service.KeyBits
		}
		if service.SocketPath != "" {
			c.Service.SocketPath = service.SocketPath
		}
		if service.ReadTimeout != "" {
			c.Service.ReadTimeout = service.ReadTimeout
		}
		if service.WriteTimeout != "" {
			c.Service.WriteTimeout = service.WriteTimeout
		}
		if service.Framing != "" {
			c.Service.Framing = service.Framing
		}
	}

	if keystore := overrides.Keystore; keystore != nil {
		if keystore.Backend != "" {
			c.Keystore.Backend = keystore.Backend
		}
		if keystore.Directory != "" {
			c.Keystore.Directory = keystore.Directory
		}
		if keystore.PassphraseFile != "" {
			c.Keystore.PassphraseFile = keystore.PassphraseFile
		}
		if keystore.ScryptWorkFactor != 0 {
			c.Keystore.ScryptWorkFactor = keystore.ScryptWorkFactor
		}
	}

	if peer := overrides.Peer; peer != nil {
		if peer.Account != "" {
			c.Peer.Account = peer.Account
		}
		if peer.Executable != "" {
			c.Peer.Executable = peer.Executable
		}
		if peer.ExecutableSHA256 != "" {
			c.Peer.ExecutableSHA256 = peer.ExecutableSHA256
		}
	}

	if log := overrides.Log; log != nil {
		if log.Level != "" {
			c.Log.Level = log.Level
		}
		if log.Format != "" {
			c.Log.Format = log.Format
		}
	}

	if metrics := overrides.Metrics; metrics != nil && metrics.Listen != "" {
		c.Metrics.Listen = metrics.Listen
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Service.SocketPath = expandVars(c.Service.SocketPath, vars)
	c.Keystore.Directory = expandVars(c.Keystore.Directory, vars)
	c.Keystore.PassphraseFile = expandVars(c.Keystore.PassphraseFile, vars)
	c.Metrics.Listen = expandVars(c.Metrics.Listen, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, looking in
// vars first and then the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// maxScryptWorkFactor matches the ceiling the sealing layer accepts
// when opening a key.
const maxScryptWorkFactor = 22

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Service.Alias == "" {
		errs = append(errs, errors.New("service.alias is required"))
	}
	if !slices.Contains([]int{2048, 3072, 4096}, c.Service.KeyBits) {
		errs = append(errs, fmt.Errorf("service.key_bits must be 2048, 3072, or 4096, got %d", c.Service.KeyBits))
	}
	if _, err := positiveDuration(c.Service.ReadTimeout); err != nil {
		errs = append(errs, fmt.Errorf("service.read_timeout: %w", err))
	}
	if _, err := positiveDuration(c.Service.WriteTimeout); err != nil {
		errs = append(errs, fmt.Errorf("service.write_timeout: %w", err))
	}
	if !slices.Contains([]string{"raw", "length"}, c.Service.Framing) {
		errs = append(errs, fmt.Errorf("service.framing must be raw or length, got %q", c.Service.Framing))
	}
	if c.Service.SocketPath != "" && !filepath.IsAbs(c.Service.SocketPath) {
		errs = append(errs, fmt.Errorf("service.socket_path must be absolute, got %q", c.Service.SocketPath))
	}

	switch c.Keystore.Backend {
	case "file":
		if c.Keystore.Directory == "" {
			errs = append(errs, errors.New("keystore.directory is required for the file backend"))
		}
		if c.Keystore.ScryptWorkFactor < 1 || c.Keystore.ScryptWorkFactor > maxScryptWorkFactor {
			errs = append(errs, fmt.Errorf("keystore.scrypt_work_factor must be between 1 and %d, got %d",
				maxScryptWorkFactor, c.Keystore.ScryptWorkFactor))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("keystore.backend must be file or memory, got %q", c.Keystore.Backend))
	}

	if c.Peer.Account == "" {
		errs = append(errs, errors.New("peer.account is required"))
	}
	if c.Peer.Executable == "" {
		errs = append(errs, errors.New("peer.executable is required"))
	}
	if c.Peer.ExecutableSHA256 != "" {
		if decoded, err := hex.DecodeString(c.Peer.ExecutableSHA256); err != nil || len(decoded) != 32 {
			errs = append(errs, errors.New("peer.executable_sha256 must be 64 hex characters"))
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be auto, text, or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Timeouts returns the parsed read and write timeouts.
func (s ServiceConfig) Timeouts() (read, write time.Duration, err error) {
	read, err = positiveDuration(s.ReadTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("service.read_timeout: %w", err)
	}
	write, err = positiveDuration(s.WriteTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("service.write_timeout: %w", err)
	}
	return read, write, nil
}

// SlogLevel maps Level to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func positiveDuration(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", value)
	}
	return duration, nil
}
