// Package auth establishes and verifies the RPC shared credential and
// filters peers by IP.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/honeyd/internal/logger"
)

// CookieUser is the user name paired with a generated cookie secret.
const CookieUser = "__cookie__"

const cookieSecretBytes = 32

// shortSecretLen is the length below which failed attempts are delayed.
const shortSecretLen = 20

// CredentialConfig selects where the shared credential comes from.
type CredentialConfig struct {
	User     string
	Password string

	// CookieFile receives the generated credential when Password is empty.
	CookieFile string
}

// Credential is the one "user:secret" string every request must present.
type Credential struct {
	value      string
	secret     string
	cookiePath string

	removeOnce sync.Once
}

// Establish builds the shared credential. With a configured password it is
// user:password; otherwise a random secret is generated and written to
// CookieFile, readable by the owner only.
func Establish(cfg CredentialConfig) (*Credential, error) {
	if cfg.Password != "" {
		return &Credential{
			value:  cfg.User + ":" + cfg.Password,
			secret: cfg.Password,
		}, nil
	}

	if cfg.CookieFile == "" {
		return nil, errors.New("no rpc password configured and no cookie file path set")
	}

	buf := make([]byte, cookieSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate auth cookie: %w", err)
	}
	secret := hex.EncodeToString(buf)
	value := CookieUser + ":" + secret

	if err := writeCookie(cfg.CookieFile, value); err != nil {
		return nil, err
	}
	logger.Info("Generated RPC authentication cookie %s", cfg.CookieFile)

	return &Credential{
		value:      value,
		secret:     secret,
		cookiePath: cfg.CookieFile,
	}, nil
}

// writeCookie writes through a temp file and renames it so a reader never
// sees a partial cookie.
func writeCookie(path, value string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write auth cookie %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to install auth cookie %s: %w", path, err)
	}
	return nil
}

// ShortSecret reports whether the secret is short enough to warrant a delay
// after every failed attempt.
func (c *Credential) ShortSecret() bool {
	return len(c.secret) < shortSecretLen
}

// CookiePath is the generated cookie file, or "" for a configured password.
func (c *Credential) CookiePath() string {
	return c.cookiePath
}

// Remove deletes the cookie file, if one was generated. It is safe to call
// more than once.
func (c *Credential) Remove() error {
	if c == nil || c.cookiePath == "" {
		return nil
	}

	var err error
	c.removeOnce.Do(func() {
		if rmErr := os.Remove(c.cookiePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = fmt.Errorf("failed to remove auth cookie: %w", rmErr)
		}
	})
	return err
}

func (c *Credential) bytes() []byte {
	return []byte(c.value)
}
