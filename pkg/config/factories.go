package config

import (
	"context"
	"fmt"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/auth"
	"github.com/marmos91/honeyd/pkg/chain"
	"github.com/marmos91/honeyd/pkg/chain/badger"
	"github.com/marmos91/honeyd/pkg/chain/memory"
	"github.com/marmos91/honeyd/pkg/wallet"
	"github.com/mitchellh/mapstructure"
)

// CreateChainStore creates a chain store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/chain/memory (in-memory, ephemeral)
//   - "badger": Uses pkg/chain/badger (BadgerDB, persistent)
//
// The caller owns the returned store and must Close it.
func CreateChainStore(ctx context.Context, cfg *Config) (chain.Store, error) {
	switch cfg.Chain.Type {
	case "memory":
		return createMemoryChainStore(ctx, cfg.Chain.Memory)
	case "badger":
		return createBadgerChainStore(ctx, cfg, cfg.Chain.Badger)
	default:
		return nil, fmt.Errorf("unknown chain store type: %q (supported: memory, badger)", cfg.Chain.Type)
	}
}

// createMemoryChainStore creates an in-memory chain store.
func createMemoryChainStore(ctx context.Context, options map[string]any) (chain.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg memory.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory chain store options: %w", err)
	}

	return memory.New(storeCfg), nil
}

// createBadgerChainStore creates a BadgerDB-based persistent chain store.
// A relative db_path is placed under the data directory.
func createBadgerChainStore(ctx context.Context, cfg *Config, options map[string]any) (chain.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg badger.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger chain store options: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger chain store: db_path is required")
	}
	storeCfg.DBPath = cfg.ResolvePath(storeCfg.DBPath)

	store, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger chain store: %w", err)
	}

	logger.Info("Badger chain store opened: path=%s", storeCfg.DBPath)
	return store, nil
}

// CreateWallet returns the configured wallet, or nil when the wallet is
// disabled. A nil wallet.Wallet makes every wallet command unknown.
func CreateWallet(cfg *Config) wallet.Wallet {
	if !cfg.Wallet.Enabled {
		return nil
	}
	w := wallet.NewMemoryWallet(cfg.Wallet.Passphrase)
	if w.IsCrypted() {
		logger.Info("Wallet enabled (encrypted, locked)")
	} else {
		logger.Info("Wallet enabled (unencrypted)")
	}
	return w
}

// CredentialConfig maps the auth section onto auth.CredentialConfig, with
// the cookie path resolved against the data directory.
func CredentialConfig(cfg *Config) auth.CredentialConfig {
	return auth.CredentialConfig{
		User:       cfg.Auth.User,
		Password:   cfg.Auth.Password,
		CookieFile: cfg.ResolvePath(cfg.Auth.CookieFile),
	}
}
