package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# honeyd Configuration File
#
# Every value below is the default. Any key can be overridden with an
# environment variable: HONEYD_<SECTION>_<KEY>, e.g. HONEYD_RPC_PORT=25715.
# Relative paths are resolved against server.data_dir.
`

// sectionComments documents each top-level section of the generated file.
var sectionComments = map[string]string{
	"logging": "Logging: level is DEBUG, INFO, WARN or ERROR; output is stdout,\nstderr or a file path (rotated by size).",
	"server":  "Server-wide settings. The auth cookie and the chain database live in data_dir.",
	"rpc": "JSON-RPC listener. An empty allow_ips binds loopback only.\n" +
		"allow_ips entries are addresses, CIDR blocks or wildcards such as 192.168.1.*.",
	"auth":   "RPC credential. Without a password a random cookie is written to cookie_file.",
	"chain":  "Chain store: memory or badger. Only the section matching type is used.",
	"wallet": "Optional wallet. A passphrase makes it encrypted and initially locked.",
}

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	// The file may end up holding the RPC password.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a file header and one
// comment per top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if doc.Kind == yaml.MappingNode {
		// Keys and values alternate in Content.
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key := doc.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}
