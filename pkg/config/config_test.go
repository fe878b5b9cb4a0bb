package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/honeyd/pkg/adapter/jsonrpc"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

server:
  data_dir: "` + tmpDir + `"

rpc:
  allow_ips:
    - "192.168.1.*"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.RPC.Port != jsonrpc.DefaultPort {
		t.Errorf("Expected default RPC port %d, got %d", jsonrpc.DefaultPort, cfg.RPC.Port)
	}
	if cfg.RPC.Threads != 4 {
		t.Errorf("Expected default threads 4, got %d", cfg.RPC.Threads)
	}
	if len(cfg.RPC.AllowIPs) != 1 || cfg.RPC.AllowIPs[0] != "192.168.1.*" {
		t.Errorf("Expected allow_ips from file, got %v", cfg.RPC.AllowIPs)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path so the user's own config is never picked up
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Chain.Type != "memory" {
		t.Errorf("Expected default chain type 'memory', got %q", cfg.Chain.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"
format = "json"

[rpc]
port = 25715
read_timeout = "10s"

[chain]
type = "memory"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.RPC.Port != 25715 {
		t.Errorf("Expected port 25715, got %d", cfg.RPC.Port)
	}
	if cfg.RPC.ReadTimeout != 10*time.Second {
		t.Errorf("Expected read_timeout 10s, got %v", cfg.RPC.ReadTimeout)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
chain:
  type: "leveldb"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown chain type")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Chain.Type != "memory" {
		t.Errorf("Expected default chain type 'memory', got %q", cfg.Chain.Type)
	}
	if cfg.RPC.Port != 15715 {
		t.Errorf("Expected default RPC port 15715, got %d", cfg.RPC.Port)
	}
	if cfg.Auth.User != "honeyrpc" {
		t.Errorf("Expected default RPC user 'honeyrpc', got %q", cfg.Auth.User)
	}
	if cfg.Auth.CookieFile != DefaultCookieFile {
		t.Errorf("Expected default cookie file %q, got %q", DefaultCookieFile, cfg.Auth.CookieFile)
	}
	if cfg.Wallet.Enabled {
		t.Error("Expected wallet disabled by default")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "honeyd" {
		t.Errorf("Expected directory name 'honeyd', got %q", filepath.Base(dir))
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if got, want := GetConfigDir(), filepath.Join(tmpDir, "honeyd"); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if ConfigExists() {
		t.Error("Expected no config in a fresh XDG_CONFIG_HOME")
	}
}

func TestResolvePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.DataDir = "/var/lib/honeyd"

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{".cookie", "/var/lib/honeyd/.cookie"},
		{"tls/server.pem", "/var/lib/honeyd/tls/server.pem"},
		{"/etc/honeyd/server.cert", "/etc/honeyd/server.cert"},
	}
	for _, tt := range tests {
		if got := cfg.ResolvePath(tt.in); got != tt.want {
			t.Errorf("ResolvePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("HONEYD_LOGGING_LEVEL", "ERROR")
	t.Setenv("HONEYD_RPC_PORT", "25715")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Environment overrides apply to keys viper knows about
	configContent := `
logging:
  level: "INFO"

rpc:
  port: 15715
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.RPC.Port != 25715 {
		t.Errorf("Expected port 25715 from env var, got %d", cfg.RPC.Port)
	}
}
