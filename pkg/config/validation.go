package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/honeyd/pkg/auth"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Allow-list entries are parsed the same way the server parses them
	if _, err := auth.NewAllowList(cfg.RPC.AllowIPs); err != nil {
		return fmt.Errorf("rpc.allow_ips: %w", err)
	}

	// Without a password the credential lives in the cookie file
	if cfg.Auth.Password == "" && cfg.Auth.CookieFile == "" {
		return fmt.Errorf("auth: either password or cookie_file must be set")
	}

	if cfg.Auth.Password != "" && cfg.Auth.User == "" {
		return fmt.Errorf("auth: user is required when password is set")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.RPC.Port {
		return fmt.Errorf("server.metrics: port %d collides with rpc.port", cfg.Server.Metrics.Port)
	}

	if cfg.Wallet.Passphrase != "" && !cfg.Wallet.Enabled {
		return fmt.Errorf("wallet: passphrase is set but the wallet is disabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
