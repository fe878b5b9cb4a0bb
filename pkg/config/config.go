package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/honeyd/pkg/adapter/jsonrpc"
	"github.com/spf13/viper"
)

// Config represents the complete honeyd configuration.
//
// This structure captures all configurable aspects of the node's control
// plane:
//   - Logging configuration
//   - Server-wide settings (data directory, shutdown, safe mode, metrics)
//   - The JSON-RPC listener
//   - RPC credentials
//   - Chain store selection and configuration (store-specific)
//   - The optional wallet
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (HONEYD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each chain store defines its own configuration type. The Chain section holds
// one map per store type and only the map matching the selected type is
// decoded, by CreateChainStore.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// RPC configures the JSON-RPC listener.
	// Uses the jsonrpc.Config type directly to avoid duplication.
	RPC jsonrpc.Config `mapstructure:"rpc" yaml:"rpc"`

	// Auth selects the RPC credential
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Chain specifies the chain store type and type-specific configuration
	Chain ChainConfig `mapstructure:"chain" yaml:"chain"`

	// Wallet enables the wallet capability
	Wallet WalletConfig `mapstructure:"wallet" yaml:"wallet"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`

	// Rotation settings, used only when Output is a file path
	MaxSizeMB  int `mapstructure:"max_size_mb" validate:"min=0" yaml:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups" validate:"min=0" yaml:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days" validate:"min=0" yaml:"max_age_days"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// DataDir holds the auth cookie, the chain database and relative TLS files
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// DisableSafeMode lets every command run while the node reports a
	// warning condition
	DisableSafeMode bool `mapstructure:"disable_safe_mode" yaml:"disable_safe_mode"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the metrics HTTP server (bound to loopback)
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AuthConfig selects the RPC credential.
//
// With a password, clients authenticate as user:password. Without one, a
// random cookie is written to CookieFile for the lifetime of the server.
type AuthConfig struct {
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`

	// CookieFile is resolved relative to server.data_dir
	CookieFile string `mapstructure:"cookie_file" yaml:"cookie_file"`

	// FailureDelay is applied to failed attempts when the secret is short
	FailureDelay time.Duration `mapstructure:"failure_delay" validate:"min=0" yaml:"failure_delay"`
}

// ChainConfig specifies chain store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type ChainConfig struct {
	// Type specifies which chain store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// WalletConfig enables the in-process wallet.
type WalletConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Passphrase encrypts the wallet. Empty leaves it unencrypted.
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (HONEYD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: HONEYD_RPC_PORT=25715
	v.SetEnvPrefix("HONEYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/honeyd/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// No config file: run on defaults and environment
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "honeyd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "honeyd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

// ResolvePath interprets path relative to the data directory. Absolute paths
// and the empty string are returned unchanged.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Server.DataDir, path)
}
