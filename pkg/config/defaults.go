package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/honeyd/pkg/adapter/jsonrpc"
)

// Default file names, relative to server.data_dir.
const (
	DefaultCookieFile  = ".cookie"
	DefaultTLSCertFile = "server.cert"
	DefaultTLSKeyFile  = "server.pem"
	DefaultChainDir    = "chain"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Relative file paths are left relative; consumers resolve them with
//     Config.ResolvePath
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyRPCDefaults(&cfg.RPC)
	applyAuthDefaults(&cfg.Auth)
	applyChainDefaults(&cfg.Chain)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 28
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// defaultDataDir is ~/.honeyd, or ./.honeyd without a home directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".honeyd"
	}
	return filepath.Join(home, ".honeyd")
}

// applyRPCDefaults sets JSON-RPC listener defaults. Values the adapter
// defaults itself are filled in here too so generated files show them.
func applyRPCDefaults(cfg *jsonrpc.Config) {
	if cfg.Port == 0 {
		cfg.Port = jsonrpc.DefaultPort
	}
	if cfg.AllowIPs == nil {
		cfg.AllowIPs = []string{}
	}
	if cfg.Threads == 0 {
		cfg.Threads = 4
	}
	if cfg.MaxRequestBytes == 0 {
		cfg.MaxRequestBytes = 4 << 20
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit.MaxPeers == 0 {
		cfg.RateLimit.MaxPeers = 1024
	}

	if cfg.TLS.CertFile == "" {
		cfg.TLS.CertFile = DefaultTLSCertFile
	}
	if cfg.TLS.KeyFile == "" {
		cfg.TLS.KeyFile = DefaultTLSKeyFile
	}
	if cfg.TLS.Ciphers == "" {
		cfg.TLS.Ciphers = "TLSv1+HIGH:!SSLv2:!aNULL:!eNULL:!AH:!3DES:@STRENGTH"
	}
}

// applyAuthDefaults sets credential defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.CookieFile == "" {
		cfg.CookieFile = DefaultCookieFile
	}
	if cfg.FailureDelay == 0 {
		cfg.FailureDelay = 250 * time.Millisecond
	}
}

// applyChainDefaults sets chain store defaults.
func applyChainDefaults(cfg *ChainConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Memory["seed_genesis"]; !ok {
		cfg.Memory["seed_genesis"] = true
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = DefaultChainDir
	}
	if _, ok := cfg.Badger["seed_genesis"]; !ok {
		cfg.Badger["seed_genesis"] = true
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Auth: AuthConfig{
			User: "honeyrpc",
		},
		Chain: ChainConfig{
			Memory: make(map[string]any),
			Badger: make(map[string]any),
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
