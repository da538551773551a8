package disputes

import (
	"context"
	"math/big"
	"testing"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/miner"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	colony = common.BytesToAddress([]byte{0xc0, 0x10}).Hex()
	honest = common.BytesToAddress([]byte{0xaa})
	faulty = common.BytesToAddress([]byte{0xbb})
)

func user(i int) string {
	return common.BytesToAddress([]byte{0x05, byte(i)}).Hex()
}

func logEntry(u int, amount int64) ledger.UpdateLogEntry {
	return ledger.UpdateLogEntry{User: user(u), Amount: big.NewInt(amount), SkillID: uint256.NewInt(1), Colony: colony}
}

// fiveEntries touches users 1, 2, 1, 3, 2: entry 2 updates an existing
// reputation and entry 3 creates one.
func fiveEntries() *ledger.MockLedger {
	m := ledger.NewMockLedger()
	for i, u := range []int{1, 2, 1, 3, 2} {
		m.AppendEntry(logEntry(u, int64(10+i)))
	}
	return m
}

func submitted(t *testing.T, m *ledger.MockLedger, who common.Address, cfg miner.Config, cache *storage.MinerStore) *miner.MiningCycleContext {
	t.Helper()
	ctx := context.Background()
	c, err := miner.NewMiningCycle(m.As(who), cache, cfg)
	require.NoError(t, err)
	require.NoError(t, c.ReplayLog(ctx))
	require.NoError(t, c.SubmitRootHash(ctx))
	return c
}

func setupDispute(t *testing.T, m *ledger.MockLedger, wrongAt uint64) (*miner.MiningCycleContext, *miner.MiningCycleContext) {
	t.Helper()
	ctx := context.Background()
	good := submitted(t, m, honest, miner.DefaultConfig(), nil)
	cfg := miner.DefaultConfig()
	cfg.Score = miner.OffsetScore(wrongAt, big.NewInt(1000))
	bad := submitted(t, m, faulty, cfg, nil)
	require.NotEqual(t, good.RootHash(), bad.RootHash())
	require.NoError(t, good.SubmitJustificationRootHash(ctx))
	require.NoError(t, bad.SubmitJustificationRootHash(ctx))
	return good, bad
}

func TestSearchBounds(t *testing.T) {
	b := SearchBounds{Lo: 0, Hi: 5}
	assert.False(t, b.Converged())
	assert.Equal(t, uint64(2), b.Mid())
	assert.Equal(t, SearchBounds{Lo: 2, Hi: 5}, b.Narrow(true))
	assert.Equal(t, SearchBounds{Lo: 0, Hi: 2}, b.Narrow(false))
	assert.True(t, SearchBounds{Lo: 2, Hi: 3}.Converged())
	assert.False(t, SearchBounds{Lo: 3, Hi: 3}.Converged())

	assert.NoError(t, b.Validate(5))
	assert.ErrorIs(t, b.Validate(4), minererrors.ErrDBoundsOutOfRange)
	assert.ErrorIs(t, SearchBounds{Lo: 3, Hi: 3}.Validate(5), minererrors.ErrDBoundsOutOfRange)

	for n, want := range map[uint64]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 1024: 10} {
		assert.Equal(t, want, MaxSteps(n), "n=%d", n)
	}
}

func TestBoundsConvergeToFirstDifference(t *testing.T) {
	for n := uint64(1); n <= 33; n++ {
		for d := uint64(0); d < n; d++ {
			b := SearchBounds{Lo: 0, Hi: n}
			steps := 0
			for !b.Converged() {
				// leaf i agrees iff it precedes the effect of entry d
				b = b.Narrow(b.Mid() <= d)
				steps++
			}
			require.Equal(t, SearchBounds{Lo: d, Hi: d + 1}, b, "n=%d d=%d", n, d)
			require.LessOrEqual(t, steps, MaxSteps(n), "n=%d d=%d", n, d)
		}
	}
}

func TestDisputeFiveEntries(t *testing.T) {
	ctx := context.Background()
	m := fiveEntries()
	good, bad := setupDispute(t, m, 2)
	dg, db := NewDriver(good), NewDriver(bad)

	for i := 0; !BoundsOf(m.Round(0)[0]).Converged(); i++ {
		require.Less(t, i, MaxSteps(5))
		done, err := dg.Step(ctx)
		require.NoError(t, err)
		require.False(t, done)
		done, err = db.Step(ctx)
		require.NoError(t, err)
		require.False(t, done)
	}
	subs := m.Round(0)
	require.Len(t, subs, 2)
	assert.Equal(t, SearchBounds{Lo: 2, Hi: 3}, BoundsOf(subs[0]))
	assert.Equal(t, SearchBounds{Lo: 2, Hi: 3}, BoundsOf(subs[1]))
	assert.LessOrEqual(t, subs[0].ChallengeStepCompleted, uint64(MaxSteps(5)))

	err := db.RespondToChallenge(ctx)
	assert.ErrorIs(t, err, minererrors.ErrDChallengeRejected)
	require.NoError(t, dg.RespondToChallenge(ctx))

	won, _ := m.Outcome(0, 0)
	assert.True(t, won)
	_, lost := m.Outcome(0, 1)
	assert.True(t, lost)
	next := m.Round(1)
	require.Len(t, next, 1)
	assert.Equal(t, good.RootHash(), next[0].ProposedNewRootHash)
}

func TestDisputeNewReputation(t *testing.T) {
	ctx := context.Background()
	m := fiveEntries()
	good, bad := setupDispute(t, m, 3)
	winner, err := Duel(ctx, [2]*Driver{NewDriver(bad), NewDriver(good)}, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, winner)
	assert.Equal(t, SearchBounds{Lo: 3, Hi: 4}, BoundsOf(m.Round(0)[0]))
}

func TestDisputeEveryEntry(t *testing.T) {
	ctx := context.Background()
	for wrong := uint64(0); wrong < 9; wrong++ {
		m := ledger.NewMockLedger()
		for i := 0; i < 9; i++ {
			m.AppendEntry(logEntry(i%4, int64(i+1)))
		}
		good, bad := setupDispute(t, m, wrong)
		winner, err := Duel(ctx, [2]*Driver{NewDriver(good), NewDriver(bad)}, 16)
		require.NoError(t, err, "wrong=%d", wrong)
		assert.Equal(t, 0, winner, "wrong=%d", wrong)
		sub := m.Round(0)[0]
		assert.Equal(t, SearchBounds{Lo: wrong, Hi: wrong + 1}, BoundsOf(sub), "wrong=%d", wrong)
		assert.LessOrEqual(t, sub.ChallengeStepCompleted, uint64(MaxSteps(9)))
	}
}

func TestDisputeAfterRestart(t *testing.T) {
	ctx := context.Background()
	m := fiveEntries()
	ps, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	cache := storage.NewMinerStore(ps)
	defer cache.Close()

	good := submitted(t, m, honest, miner.DefaultConfig(), cache)
	cfg := miner.DefaultConfig()
	cfg.Score = miner.OffsetScore(1, big.NewInt(-4))
	bad := submitted(t, m, faulty, cfg, nil)
	require.NoError(t, good.SubmitJustificationRootHash(ctx))
	require.NoError(t, bad.SubmitJustificationRootHash(ctx))

	restarted, err := miner.LoadCycle(m.As(honest), cache, miner.DefaultConfig())
	require.NoError(t, err)
	winner, err := Duel(ctx, [2]*Driver{NewDriver(restarted), NewDriver(bad)}, 16)
	require.NoError(t, err)
	assert.Equal(t, 0, winner)
}

func TestChallengeBeforeConvergence(t *testing.T) {
	ctx := context.Background()
	m := fiveEntries()
	good, _ := setupDispute(t, m, 2)
	d := NewDriver(good)
	assert.ErrorIs(t, d.RespondToChallenge(ctx), minererrors.ErrDNotConverged)
	_, err := d.BuildChallengePayload(ctx, 0, 0, SearchBounds{Lo: 0, Hi: 5})
	assert.ErrorIs(t, err, minererrors.ErrDNotConverged)
}

func TestChallengePayload(t *testing.T) {
	ctx := context.Background()
	m := fiveEntries()
	good, _ := setupDispute(t, m, 2)
	p, err := NewDriver(good).BuildChallengePayload(ctx, 0, 0, SearchBounds{Lo: 2, Hi: 3})
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	args := p.Args()
	assert.Equal(t, uint64(2), args.U[3].Uint64())
	assert.Equal(t, uint64(2), args.U[5].Uint64())
	assert.Equal(t, int64(0), args.U[8].Int64())
	assert.Equal(t, p.ReputationKey.Bytes(), args.ReputationKey)
	assert.Equal(t, p.DisagreeState.Value, args.DisagreeStateReputationValue)

	broken := *p
	broken.FirstDisagree = 4
	assert.ErrorIs(t, broken.Validate(), minererrors.ErrDInvalidPayload)
	broken = *p
	broken.DisagreeState.Value = []byte{1}
	assert.ErrorIs(t, broken.Validate(), minererrors.ErrDInvalidPayload)
	broken = *p
	broken.AgreeJustification = p.AgreeJustification.Copy()
	broken.AgreeJustification.Siblings = append(broken.AgreeJustification.Siblings, common.Hash{})
	assert.ErrorIs(t, broken.Validate(), minererrors.ErrDInvalidPayload)
}

func TestNoOpponent(t *testing.T) {
	ctx := context.Background()
	m := fiveEntries()
	good := submitted(t, m, honest, miner.DefaultConfig(), nil)
	require.NoError(t, good.SubmitJustificationRootHash(ctx))
	_, err := NewDriver(good).Step(ctx)
	assert.ErrorIs(t, err, minererrors.ErrDNoOpponent)
}

func TestRunRejectsZeroInterval(t *testing.T) {
	m := fiveEntries()
	good := submitted(t, m, honest, miner.DefaultConfig(), nil)
	assert.Error(t, NewDriver(good).Run(context.Background(), 0))
}
