package miner

import (
	"context"
	"math/big"
	"testing"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndLocate(t *testing.T) {
	ctx := context.Background()
	m := sampleLedger(6)
	a := replayed(t, m.As(minerA), nil, DefaultConfig())
	require.NoError(t, a.SubmitRootHash(ctx))

	cfgB := DefaultConfig()
	cfgB.Score = OffsetScore(3, big.NewInt(1))
	b := replayed(t, m.As(minerB), nil, cfgB)
	require.NotEqual(t, a.RootHash(), b.RootHash())
	require.NoError(t, b.SubmitRootHash(ctx))

	round, index, err := a.GetMySubmissionRoundAndIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), round)
	assert.Equal(t, uint64(0), index)
	round, index, err = b.GetMySubmissionRoundAndIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), round)
	assert.Equal(t, uint64(1), index)

	require.NoError(t, a.SubmitJustificationRootHash(ctx))
	require.NoError(t, b.SubmitJustificationRootHash(ctx))
	sub := m.Round(0)[0]
	assert.Equal(t, a.JustificationRootHash(), sub.JRH)
	assert.Equal(t, uint64(0), sub.LowerBound)
	assert.Equal(t, uint64(6), sub.UpperBound)
}

func TestSlotIteratorBounded(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMockLedger()
	mc, err := m.As(minerA).MiningCycle(ctx)
	require.NoError(t, err)
	require.NoError(t, mc.SubmitNewHash(ctx, common.Keccak256([]byte("x")), 1, 1))

	it := NewSlotIterator(mc, 3, 8)
	slot, err := it.Next(ctx)
	require.NoError(t, err)
	assert.True(t, slot.Occupied)
	slot, err = it.Next(ctx)
	require.NoError(t, err)
	assert.False(t, slot.Occupied)
	assert.ErrorIs(t, slot.Err, minererrors.ErrLIndexOutOfRange)
	assert.Equal(t, uint64(0), slot.Round)
	assert.Equal(t, uint64(1), slot.Index)

	slot, err = it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot.Round)
	assert.Equal(t, uint64(0), slot.Index)

	_, err = NewSlotIterator(mc, 3, 8).FindSubmission(ctx, common.Keccak256([]byte("missing")))
	assert.ErrorIs(t, err, minererrors.ErrMSlotNotFound)
}

func TestSlotIteratorIndexBound(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMockLedger()
	for i := 0; i < 4; i++ {
		mc, _ := m.As(common.BytesToAddress([]byte{byte(i + 1)})).MiningCycle(ctx)
		require.NoError(t, mc.SubmitNewHash(ctx, common.Keccak256([]byte{byte(i)}), 1, 1))
	}
	mc, _ := m.As(minerA).MiningCycle(ctx)
	_, err := NewSlotIterator(mc, 2, 2).FindSubmission(ctx, common.Keccak256([]byte{3}))
	assert.ErrorIs(t, err, minererrors.ErrMSlotNotFound)
	slot, err := NewSlotIterator(mc, 2, 4).FindSubmission(ctx, common.Keccak256([]byte{3}))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), slot.Index)
}

func TestGenesisEmptyLogSubmission(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMockLedger()
	c := replayed(t, m.As(minerA), nil, DefaultConfig())
	assert.True(t, c.RootHash().IsZero())

	require.NoError(t, c.SubmitRootHash(ctx))
	require.NoError(t, c.SubmitJustificationRootHash(ctx))
	sub := m.Round(0)[0]
	assert.Equal(t, common.Hash{}, sub.ProposedNewRootHash)
	assert.Equal(t, c.JustificationRootHash(), sub.JRH)
	assert.Equal(t, uint64(0), sub.UpperBound)
}
