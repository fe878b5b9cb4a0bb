// Package memory is an in-process chain store, used by development nodes
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/honeyd/pkg/chain"
)

// Config is decoded from the chain.memory config section.
type Config struct {
	// SeedGenesis appends chain.Genesis() to the empty store.
	SeedGenesis bool `mapstructure:"seed_genesis"`
}

// Store keeps the whole best chain in memory.
type Store struct {
	chain.NodeState

	mu       sync.RWMutex
	blocks   map[string]*chain.Block
	byHeight []string
}

// New creates an empty store, optionally seeded with the genesis block.
func New(cfg Config) *Store {
	s := &Store{blocks: make(map[string]*chain.Block)}
	if cfg.SeedGenesis {
		// An empty chain always accepts genesis.
		_ = s.AppendBlock(context.Background(), chain.Genesis())
	}
	return s
}

func (s *Store) BestHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byHeight)) - 1, nil
}

func (s *Store) BestHash(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.byHeight) == 0 {
		return "", chain.ErrEmptyChain
	}
	return s.byHeight[len(s.byHeight)-1], nil
}

func (s *Store) BlockHash(ctx context.Context, height int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if height < 0 || height >= int64(len(s.byHeight)) {
		return "", chain.ErrHeightOutOfRange
	}
	return s.byHeight[height], nil
}

func (s *Store) Block(ctx context.Context, hash string) (*chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[hash]
	if !ok {
		return nil, chain.ErrBlockNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) LastBlock(ctx context.Context, proofOfStake bool) (*chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.byHeight) == 0 {
		return nil, chain.ErrEmptyChain
	}
	for h := len(s.byHeight) - 1; h >= 0; h-- {
		b := s.blocks[s.byHeight[h]]
		if b.ProofOfStake == proofOfStake || h == 0 {
			cp := *b
			return &cp, nil
		}
	}
	return nil, chain.ErrBlockNotFound
}

func (s *Store) AppendBlock(ctx context.Context, b *chain.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tip := ""
	if n := len(s.byHeight); n > 0 {
		tip = s.byHeight[n-1]
	}
	if err := chain.ValidateNext(b, int64(len(s.byHeight))-1, tip); err != nil {
		return err
	}

	cp := *b
	s.blocks[b.Hash] = &cp
	s.byHeight = append(s.byHeight, b.Hash)
	return nil
}

func (s *Store) Close() error {
	return nil
}
