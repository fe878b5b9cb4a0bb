// Package badger persists the best chain in BadgerDB.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/honeyd/pkg/chain"
)

// Key namespace:
//
//	"b:<hash>"           -> Block (JSON)
//	"h:<height, 8B BE>"  -> block hash (bytes)
//	"best"               -> tip height (8B BE)
//
// Heights are big-endian so a prefix scan over "h:" walks the chain in order.
const (
	prefixBlock  = "b:"
	prefixHeight = "h:"
	keyBest      = "best"
)

func blockKey(hash string) []byte {
	return []byte(prefixBlock + hash)
}

func heightKey(height int64) []byte {
	k := make([]byte, len(prefixHeight)+8)
	copy(k, prefixHeight)
	binary.BigEndian.PutUint64(k[len(prefixHeight):], uint64(height))
	return k
}

// Config is decoded from the chain.badger config section.
type Config struct {
	// DBPath is the directory BadgerDB keeps its files in.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// SeedGenesis appends chain.Genesis() when the database is empty.
	SeedGenesis bool `mapstructure:"seed_genesis"`

	// BlockCacheSizeMB is BadgerDB's block cache size (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// InMemory runs Badger without touching disk; DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`
}

// Store is a chain.Store over BadgerDB. Badger transactions give each read
// a consistent snapshot, so no extra locking is needed for the block data.
type Store struct {
	chain.NodeState

	db *badger.DB
}

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	// Block records are small JSON documents.
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	s := &Store{db: db}

	if cfg.SeedGenesis {
		height, err := s.BestHeight(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if height < 0 {
			if err := s.AppendBlock(ctx, chain.Genesis()); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to seed genesis block: %w", err)
			}
		}
	}

	return s, nil
}

func readBest(txn *badger.Txn) (int64, error) {
	item, err := txn.Get([]byte(keyBest))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}

	var height int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt best height record (%d bytes)", len(val))
		}
		height = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return height, err
}

func readHash(txn *badger.Txn, height int64) (string, error) {
	item, err := txn.Get(heightKey(height))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", chain.ErrHeightOutOfRange
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	return string(val), err
}

func readBlock(txn *badger.Txn, hash string) (*chain.Block, error) {
	item, err := txn.Get(blockKey(hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, chain.ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}

	var b chain.Block
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode block %s: %w", hash, err)
	}
	return &b, nil
}

func (s *Store) BestHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var height int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		height, err = readBest(txn)
		return err
	})
	return height, err
}

func (s *Store) BestHash(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		height, err := readBest(txn)
		if err != nil {
			return err
		}
		if height < 0 {
			return chain.ErrEmptyChain
		}
		hash, err = readHash(txn, height)
		return err
	})
	return hash, err
}

func (s *Store) BlockHash(ctx context.Context, height int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if height < 0 {
		return "", chain.ErrHeightOutOfRange
	}
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		hash, err = readHash(txn, height)
		return err
	})
	return hash, err
}

func (s *Store) Block(ctx context.Context, hash string) (*chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b *chain.Block
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = readBlock(txn, hash)
		return err
	})
	return b, err
}

func (s *Store) LastBlock(ctx context.Context, proofOfStake bool) (*chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found *chain.Block
	err := s.db.View(func(txn *badger.Txn) error {
		height, err := readBest(txn)
		if err != nil {
			return err
		}
		if height < 0 {
			return chain.ErrEmptyChain
		}
		for h := height; h >= 0; h-- {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := readHash(txn, h)
			if err != nil {
				return err
			}
			b, err := readBlock(txn, hash)
			if err != nil {
				return err
			}
			if b.ProofOfStake == proofOfStake || h == 0 {
				found = b
				return nil
			}
		}
		return chain.ErrBlockNotFound
	})
	return found, err
}

func (s *Store) AppendBlock(ctx context.Context, b *chain.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		height, err := readBest(txn)
		if err != nil {
			return err
		}
		tip := ""
		if height >= 0 {
			if tip, err = readHash(txn, height); err != nil {
				return err
			}
		}
		if err := chain.ValidateNext(b, height, tip); err != nil {
			return err
		}

		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode block %s: %w", b.Hash, err)
		}
		best := make([]byte, 8)
		binary.BigEndian.PutUint64(best, uint64(b.Height))

		if err := txn.Set(blockKey(b.Hash), data); err != nil {
			return err
		}
		if err := txn.Set(heightKey(b.Height), []byte(b.Hash)); err != nil {
			return err
		}
		return txn.Set([]byte(keyBest), best)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
