package jsonrpc

import (
	"fmt"
	"time"
)

// DefaultPort is the mainnet RPC port.
const DefaultPort = 15715

// Config holds configuration parameters for the JSON-RPC listener.
//
// Default values (applied by New if zero):
//   - Threads: 4
//   - MaxRequestBytes: 4 MiB
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - IdleTimeout: 5m
//   - ShutdownTimeout: 10s
//
// Port is not defaulted here: 0 binds an ephemeral port, which tests rely
// on. The config layer fills in DefaultPort.
type Config struct {
	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// AllowIPs lists the non-loopback peers that may connect. Entries are
	// exact addresses, CIDR blocks or wildcard patterns ("192.168.1.*").
	// Empty means loopback only, and the listener binds loopback only.
	AllowIPs []string `mapstructure:"allow_ips" yaml:"allow_ips"`

	// Threads is the number of workers executing requests.
	Threads int `mapstructure:"threads" validate:"min=0" yaml:"threads"`

	// MaxRequestBytes bounds a request body. Larger bodies get a 500.
	MaxRequestBytes int64 `mapstructure:"max_request_bytes" validate:"min=0" yaml:"max_request_bytes"`

	// ReadTimeout bounds reading one request once its first byte arrived.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0" yaml:"read_timeout"`

	// WriteTimeout bounds writing one reply.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0" yaml:"write_timeout"`

	// IdleTimeout closes keep-alive connections that send nothing.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0" yaml:"idle_timeout"`

	// ShutdownTimeout is how long Stop waits for in-flight requests before
	// force-closing connections.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" yaml:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// RateLimitConfig throttles each peer address independently.
// RequestsPerSecond 0 disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`

	// MaxPeers bounds the number of tracked peers; the least recently seen
	// peer is forgotten first.
	MaxPeers int `mapstructure:"max_peers" validate:"min=0" yaml:"max_peers"`
}

// TLSConfig enables HTTPS on the RPC port.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" validate:"required_if=Enabled true" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" validate:"required_if=Enabled true" yaml:"key_file"`

	// Ciphers is an OpenSSL-style list ("A:B:!C"). Entries that name no Go
	// cipher suite are ignored; an empty result keeps Go's defaults.
	Ciphers string `mapstructure:"ciphers" yaml:"ciphers"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Threads <= 0 {
		c.Threads = 4
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = 4 << 20
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimit.MaxPeers == 0 {
		c.RateLimit.MaxPeers = 1024
	}
}

// validate checks the configuration after defaults are applied.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxRequestBytes < 0 {
		return fmt.Errorf("invalid MaxRequestBytes %d: must be >= 0", c.MaxRequestBytes)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: read=%v write=%v idle=%v", c.ReadTimeout, c.WriteTimeout, c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls enabled without cert_file and key_file")
	}
	return nil
}
