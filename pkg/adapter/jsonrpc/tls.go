package jsonrpc

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// loadTLSConfig builds the server TLS config, or returns nil when TLS is off.
func loadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair (%s, %s): %w", cfg.CertFile, cfg.KeyFile, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		CipherSuites: parseCiphers(cfg.Ciphers),
	}, nil
}

// parseCiphers resolves an OpenSSL-style cipher list against the suites Go
// implements. Tokens are separated by ':', ',' or spaces. A token prefixed
// with '!' or '-' removes a suite; '+' and '@' directives are ignored.
// Returns nil (Go defaults) when nothing resolves.
func parseCiphers(list string) []uint16 {
	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[strings.ToUpper(s.Name)] = s.ID
	}

	var (
		ids      []uint16
		excluded = make(map[uint16]bool)
	)
	tokens := strings.FieldsFunc(list, func(r rune) bool {
		return r == ':' || r == ',' || r == ' '
	})
	for _, tok := range tokens {
		switch tok[0] {
		case '!', '-':
			if id, ok := byName[strings.ToUpper(tok[1:])]; ok {
				excluded[id] = true
			}
			continue
		case '+', '@':
			continue
		}
		if id, ok := byName[strings.ToUpper(tok)]; ok {
			ids = append(ids, id)
		}
	}

	var out []uint16
	seen := make(map[uint16]bool)
	for _, id := range ids {
		if excluded[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
