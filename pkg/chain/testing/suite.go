// Package testing holds the conformance suite every chain.Store must pass.
package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/marmos91/honeyd/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs the shared store tests against NewStore, which must
// return an empty store.
type StoreTestSuite struct {
	NewStore func(t *testing.T) chain.Store
}

// Run executes every test in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("EmptyChain", suite.testEmptyChain)
	t.Run("AppendAndRead", suite.testAppendAndRead)
	t.Run("AppendRejectsDisconnected", suite.testAppendRejectsDisconnected)
	t.Run("LastBlockByKind", suite.testLastBlockByKind)
	t.Run("NodeState", suite.testNodeState)
}

// BuildChain returns n linked blocks starting with chain.Genesis(). Every
// third block is proof-of-stake.
func BuildChain(n int) []*chain.Block {
	blocks := []*chain.Block{chain.Genesis()}
	for i := 1; i < n; i++ {
		prev := blocks[i-1]
		blocks = append(blocks, &chain.Block{
			Hash:         fmt.Sprintf("%064x", 0xb10c000+i),
			Height:       int64(i),
			Version:      1,
			MerkleRoot:   fmt.Sprintf("%064x", 0x3e7c1e+i),
			Time:         prev.Time + 60,
			Bits:         0x1d00ffff,
			PrevHash:     prev.Hash,
			ProofOfStake: i%3 == 0,
			Tx:           []string{fmt.Sprintf("%064x", 0x7a+i)},
		})
	}
	return blocks
}

func (suite *StoreTestSuite) fill(t *testing.T, store chain.Store, blocks []*chain.Block) {
	t.Helper()
	for _, b := range blocks {
		require.NoError(t, store.AppendBlock(context.Background(), b))
	}
}

func (suite *StoreTestSuite) testEmptyChain(t *testing.T) {
	ctx := context.Background()
	store := suite.NewStore(t)

	height, err := store.BestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)

	_, err = store.BestHash(ctx)
	assert.ErrorIs(t, err, chain.ErrEmptyChain)

	_, err = store.BlockHash(ctx, 0)
	assert.ErrorIs(t, err, chain.ErrHeightOutOfRange)

	_, err = store.Block(ctx, chain.Genesis().Hash)
	assert.ErrorIs(t, err, chain.ErrBlockNotFound)
}

func (suite *StoreTestSuite) testAppendAndRead(t *testing.T) {
	ctx := context.Background()
	store := suite.NewStore(t)
	blocks := BuildChain(5)
	suite.fill(t, store, blocks)

	height, err := store.BestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), height)

	best, err := store.BestHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, blocks[4].Hash, best)

	for i, b := range blocks {
		hash, err := store.BlockHash(ctx, int64(i))
		require.NoError(t, err)
		assert.Equal(t, b.Hash, hash)

		got, err := store.Block(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, *b, *got)
	}

	_, err = store.BlockHash(ctx, 5)
	assert.ErrorIs(t, err, chain.ErrHeightOutOfRange)
	_, err = store.BlockHash(ctx, -1)
	assert.ErrorIs(t, err, chain.ErrHeightOutOfRange)
}

func (suite *StoreTestSuite) testAppendRejectsDisconnected(t *testing.T) {
	ctx := context.Background()
	store := suite.NewStore(t)
	blocks := BuildChain(3)
	suite.fill(t, store, blocks[:2])

	gap := *blocks[2]
	gap.Height = 5
	assert.ErrorIs(t, store.AppendBlock(ctx, &gap), chain.ErrDoesNotConnect)

	fork := *blocks[2]
	fork.PrevHash = blocks[0].Hash
	assert.ErrorIs(t, store.AppendBlock(ctx, &fork), chain.ErrDoesNotConnect)

	assert.ErrorIs(t, store.AppendBlock(ctx, &chain.Block{Height: 2}), chain.ErrInvalidBlockField)

	height, err := store.BestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), height)
}

func (suite *StoreTestSuite) testLastBlockByKind(t *testing.T) {
	ctx := context.Background()
	store := suite.NewStore(t)
	blocks := BuildChain(8)
	suite.fill(t, store, blocks)

	pos, err := store.LastBlock(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos.Height)

	pow, err := store.LastBlock(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pow.Height)
}

func (suite *StoreTestSuite) testNodeState(t *testing.T) {
	ctx := context.Background()
	store := suite.NewStore(t)

	assert.Empty(t, store.Warnings())
	store.SetWarning("checkpoint mismatch")
	assert.Equal(t, "checkpoint mismatch", store.Warnings())

	pool, err := store.Mempool(ctx)
	require.NoError(t, err)
	assert.Empty(t, pool)

	store.AddMempoolTx("aa")
	store.AddMempoolTx("bb")
	pool, err = store.Mempool(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, pool)
}
