// Package chain defines the read accessors the RPC layer needs from the
// ledger engine, plus the stores that back them.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrBlockNotFound     = errors.New("block not found")
	ErrHeightOutOfRange  = errors.New("block number out of range")
	ErrEmptyChain        = errors.New("chain has no blocks")
	ErrDoesNotConnect    = errors.New("block does not connect to the best chain")
	ErrInvalidBlockField = errors.New("invalid block")
)

// Block is the stored header-level view of one block.
type Block struct {
	Hash         string   `json:"hash"`
	Height       int64    `json:"height"`
	Version      int32    `json:"version"`
	MerkleRoot   string   `json:"merkleroot"`
	Time         int64    `json:"time"`
	Nonce        uint32   `json:"nonce"`
	Bits         uint32   `json:"bits"`
	PrevHash     string   `json:"previousblockhash,omitempty"`
	Mint         int64    `json:"mint"`
	Size         int      `json:"size"`
	ProofOfStake bool     `json:"proofofstake"`
	Tx           []string `json:"tx"`
}

// View is the read side of the ledger.
type View interface {
	// BestHeight is the height of the tip, or -1 for an empty chain.
	BestHeight(ctx context.Context) (int64, error)
	BestHash(ctx context.Context) (string, error)

	// BlockHash returns the main-chain hash at height.
	BlockHash(ctx context.Context, height int64) (string, error)
	Block(ctx context.Context, hash string) (*Block, error)

	// LastBlock walks back from the tip to the newest block of the requested
	// kind.
	LastBlock(ctx context.Context, proofOfStake bool) (*Block, error)

	Mempool(ctx context.Context) ([]string, error)

	// Warnings returns the active safe-mode advisory, empty when healthy.
	Warnings() string
}

// Store is a View that can also be extended by the ledger engine.
type Store interface {
	View

	// AppendBlock connects b on top of the current tip.
	AppendBlock(ctx context.Context, b *Block) error
	AddMempoolTx(txid string)
	SetWarning(warning string)
	Close() error
}

// ValidateNext checks that b extends a chain whose tip is (height, hash).
func ValidateNext(b *Block, height int64, hash string) error {
	if b == nil || b.Hash == "" {
		return fmt.Errorf("%w: missing hash", ErrInvalidBlockField)
	}
	if b.Height != height+1 {
		return fmt.Errorf("%w: height %d after tip %d", ErrDoesNotConnect, b.Height, height)
	}
	if height >= 0 && b.PrevHash != hash {
		return fmt.Errorf("%w: previous %s, tip %s", ErrDoesNotConnect, b.PrevHash, hash)
	}
	return nil
}

// NodeState holds the parts of node status that are never persisted: the
// safe-mode advisory and the memory pool.
type NodeState struct {
	mu      sync.RWMutex
	warning string
	mempool []string
}

func (s *NodeState) SetWarning(warning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warning = warning
}

func (s *NodeState) Warnings() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warning
}

func (s *NodeState) AddMempoolTx(txid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mempool = append(s.mempool, txid)
}

func (s *NodeState) Mempool(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.mempool))
	copy(out, s.mempool)
	return out, nil
}

// Genesis returns the block every fresh store is seeded with.
func Genesis() *Block {
	return &Block{
		Hash:       "0000060fc90618113cde415ead019a1052a9abc43afcccff38608ff8751353e5",
		Height:     0,
		Version:    1,
		MerkleRoot: "996d6c3f8f0e0c5bc0dc59ad8e9b3a2b8b8b9b2f6c1f1e9c5a0cf5b4cd4ba5f3",
		Time:       1393221600,
		Nonce:      216178,
		Bits:       0x1e0fffff,
		Tx:         []string{"996d6c3f8f0e0c5bc0dc59ad8e9b3a2b8b8b9b2f6c1f1e9c5a0cf5b4cd4ba5f3"},
	}
}
