package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/honeyd/pkg/chain"
	"github.com/marmos91/honeyd/pkg/rpc"
)

func (h *handlers) blockchainCommands() []rpc.Command {
	return []rpc.Command{
		{
			Name:           "getbestblockhash",
			Handler:        h.getBestBlockHash,
			Usage:          "getbestblockhash\nReturns the hash of the best block in the longest block chain.",
			SafeModeExempt: true,
		},
		{
			Name:           "getblockcount",
			Handler:        h.getBlockCount,
			Usage:          "getblockcount\nReturns the number of blocks in the longest block chain.",
			SafeModeExempt: true,
		},
		{
			Name:           "getdifficulty",
			Handler:        h.getDifficulty,
			Usage:          "getdifficulty\nReturns the difficulty as a multiple of the minimum difficulty.",
			SafeModeExempt: true,
		},
		{
			Name:           "getinfo",
			Handler:        h.getInfo,
			Usage:          "getinfo\nReturns an object containing various state info.",
			SafeModeExempt: true,
		},
		{
			Name:           "getrawmempool",
			Handler:        h.getRawMempool,
			Usage:          "getrawmempool\nReturns all transaction ids in memory pool.",
			SafeModeExempt: true,
		},
		{
			Name:      "getblock",
			Handler:   h.getBlock,
			Usage:     "getblock <hash> [txinfo]\ntxinfo optional to print more detailed tx info\nReturns details of a block with given block-hash.",
			MinParams: 1,
			MaxParams: 2,
		},
		{
			Name:      "getblockbynumber",
			Handler:   h.getBlockByNumber,
			Usage:     "getblockbynumber <number> [txinfo]\ntxinfo optional to print more detailed tx info\nReturns details of a block with given block-number.",
			MinParams: 1,
			MaxParams: 2,
		},
		{
			Name:      "getblockhash",
			Handler:   h.getBlockHash,
			Usage:     "getblockhash <index>\nReturns hash of block in best-block-chain at <index>.",
			MinParams: 1,
			MaxParams: 1,
		},
	}
}

var errOutOfRange = rpc.NewError(rpc.ErrCodeMisc, "Block number out of range.")

// chainError maps ledger failures onto RPC errors.
func chainError(err error) error {
	switch {
	case errors.Is(err, chain.ErrBlockNotFound):
		return rpc.NewError(rpc.ErrCodeInvalidAddressOrKey, "Block not found")
	case errors.Is(err, chain.ErrHeightOutOfRange):
		return errOutOfRange
	default:
		return err
	}
}

func (h *handlers) getBestBlockHash(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	hash, err := h.deps.Chain.BestHash(ctx)
	if err != nil {
		return nil, chainError(err)
	}
	return hash, nil
}

func (h *handlers) getBlockCount(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	height, err := h.deps.Chain.BestHeight(ctx)
	if err != nil {
		return nil, chainError(err)
	}
	if height < 0 {
		height = 0
	}
	return height, nil
}

// difficultyReply is keyed the way wallets and explorers expect.
type difficultyReply struct {
	ProofOfWork  float64 `json:"proof-of-work"`
	ProofOfStake float64 `json:"proof-of-stake"`
}

// lastDifficulty is the difficulty of the newest block of one kind, 1.0 on
// an empty chain.
func (h *handlers) lastDifficulty(ctx context.Context, proofOfStake bool) (float64, error) {
	b, err := h.deps.Chain.LastBlock(ctx, proofOfStake)
	if errors.Is(err, chain.ErrEmptyChain) {
		return 1.0, nil
	}
	if err != nil {
		return 0, chainError(err)
	}
	return chain.Difficulty(b.Bits), nil
}

func (h *handlers) difficulty(ctx context.Context) (difficultyReply, error) {
	pow, err := h.lastDifficulty(ctx, false)
	if err != nil {
		return difficultyReply{}, err
	}
	pos, err := h.lastDifficulty(ctx, true)
	if err != nil {
		return difficultyReply{}, err
	}
	return difficultyReply{ProofOfWork: pow, ProofOfStake: pos}, nil
}

func (h *handlers) getDifficulty(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	return h.difficulty(ctx)
}

type infoReply struct {
	Version    string          `json:"version"`
	Blocks     int64           `json:"blocks"`
	Difficulty difficultyReply `json:"difficulty"`
	Balance    *float64        `json:"balance,omitempty"`
	PayTxFee   *float64        `json:"paytxfee,omitempty"`
	Locked     *bool           `json:"locked,omitempty"`
	Errors     string          `json:"errors"`
}

func (h *handlers) getInfo(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	height, err := h.deps.Chain.BestHeight(ctx)
	if err != nil {
		return nil, chainError(err)
	}
	diff, err := h.difficulty(ctx)
	if err != nil {
		return nil, err
	}

	reply := infoReply{
		Version:    h.deps.Version,
		Blocks:     max(height, 0),
		Difficulty: diff,
		Errors:     env.Warning,
	}

	if w := env.Wallet; w != nil {
		balance, err := w.Balance("*", 1)
		if err != nil {
			return nil, walletError(err)
		}
		b := rpc.ValueFromAmount(balance)
		fee := rpc.ValueFromAmount(w.TxFee())
		reply.Balance = &b
		reply.PayTxFee = &fee
		if w.IsCrypted() {
			locked := w.IsLocked()
			reply.Locked = &locked
		}
	}
	return reply, nil
}

func (h *handlers) getRawMempool(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	txids, err := h.deps.Chain.Mempool(ctx)
	if err != nil {
		return nil, chainError(err)
	}
	if txids == nil {
		txids = []string{}
	}
	return txids, nil
}

func (h *handlers) getBlockHash(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindInt); err != nil {
		return nil, err
	}
	height, err := h.heightParam(ctx, params.At(0).Int())
	if err != nil {
		return nil, err
	}
	hash, err := h.deps.Chain.BlockHash(ctx, height)
	if err != nil {
		return nil, chainError(err)
	}
	return hash, nil
}

func (h *handlers) getBlock(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString, rpc.KindBool); err != nil {
		return nil, err
	}
	hash, err := rpc.ParseHash(params.At(0), "blockhash")
	if err != nil {
		return nil, err
	}
	return h.blockReply(ctx, hash, params.At(1).Bool())
}

func (h *handlers) getBlockByNumber(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindInt, rpc.KindBool); err != nil {
		return nil, err
	}
	height, err := h.heightParam(ctx, params.At(0).Int())
	if err != nil {
		return nil, err
	}
	hash, err := h.deps.Chain.BlockHash(ctx, height)
	if err != nil {
		return nil, chainError(err)
	}
	return h.blockReply(ctx, hash, params.At(1).Bool())
}

// heightParam validates a requested height against the current tip.
func (h *handlers) heightParam(ctx context.Context, height int64) (int64, error) {
	best, err := h.deps.Chain.BestHeight(ctx)
	if err != nil {
		return 0, chainError(err)
	}
	if height < 0 || height > best {
		return 0, errOutOfRange
	}
	return height, nil
}

type txInfo struct {
	TxID string `json:"txid"`
}

type blockReply struct {
	Hash              string  `json:"hash"`
	Confirmations     int64   `json:"confirmations"`
	Size              int     `json:"size"`
	Height            int64   `json:"height"`
	Version           int32   `json:"version"`
	MerkleRoot        string  `json:"merkleroot"`
	Mint              float64 `json:"mint"`
	Time              int64   `json:"time"`
	Nonce             uint32  `json:"nonce"`
	Bits              string  `json:"bits"`
	Difficulty        float64 `json:"difficulty"`
	PreviousBlockHash string  `json:"previousblockhash,omitempty"`
	NextBlockHash     string  `json:"nextblockhash,omitempty"`
	Flags             string  `json:"flags"`
	Tx                []any   `json:"tx"`
}

func (h *handlers) blockReply(ctx context.Context, hash string, txDetail bool) (*blockReply, error) {
	b, err := h.deps.Chain.Block(ctx, hash)
	if err != nil {
		return nil, chainError(err)
	}
	best, err := h.deps.Chain.BestHeight(ctx)
	if err != nil {
		return nil, chainError(err)
	}

	reply := &blockReply{
		Hash:              b.Hash,
		Confirmations:     best - b.Height + 1,
		Size:              b.Size,
		Height:            b.Height,
		Version:           b.Version,
		MerkleRoot:        b.MerkleRoot,
		Mint:              rpc.ValueFromAmount(b.Mint),
		Time:              b.Time,
		Nonce:             b.Nonce,
		Bits:              fmt.Sprintf("%08x", b.Bits),
		Difficulty:        chain.Difficulty(b.Bits),
		PreviousBlockHash: b.PrevHash,
		Flags:             "proof-of-work",
		Tx:                make([]any, 0, len(b.Tx)),
	}
	if b.ProofOfStake {
		reply.Flags = "proof-of-stake"
	}

	if b.Height < best {
		next, err := h.deps.Chain.BlockHash(ctx, b.Height+1)
		if err != nil {
			return nil, chainError(err)
		}
		reply.NextBlockHash = next
	}

	for _, txid := range b.Tx {
		if txDetail {
			reply.Tx = append(reply.Tx, txInfo{TxID: txid})
		} else {
			reply.Tx = append(reply.Tx, txid)
		}
	}
	return reply, nil
}
