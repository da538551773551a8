package miner

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/reputation"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/colorfulnotion/repminer/trie"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testColony = common.BytesToAddress([]byte{0xc0, 0x10}).Hex()
	minerA     = common.BytesToAddress([]byte{0xaa})
	minerB     = common.BytesToAddress([]byte{0xbb})
)

func testUser(i int) string {
	return common.BytesToAddress([]byte{0x05, byte(i)}).Hex()
}

func entry(user string, skill uint64, amount int64) ledger.UpdateLogEntry {
	return ledger.UpdateLogEntry{
		User:    user,
		Amount:  big.NewInt(amount),
		SkillID: uint256.NewInt(skill),
		Colony:  testColony,
	}
}

func newMemCache(t *testing.T) *storage.MinerStore {
	t.Helper()
	ps, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	ms := storage.NewMinerStore(ps)
	t.Cleanup(func() { ms.Close() })
	return ms
}

func replayed(t *testing.T, l ledger.Ledger, cache *storage.MinerStore, cfg Config) *MiningCycleContext {
	t.Helper()
	c, err := NewMiningCycle(l, cache, cfg)
	require.NoError(t, err)
	require.NoError(t, c.ReplayLog(context.Background()))
	return c
}

func sampleLedger(n int) *ledger.MockLedger {
	m := ledger.NewMockLedger()
	for i := 0; i < n; i++ {
		m.AppendEntry(entry(testUser(i%4), uint64(i%3), int64(i*7-5)))
	}
	return m
}

func TestReplayScenario(t *testing.T) {
	m := ledger.NewMockLedger()
	m.AppendEntry(entry(testUser(1), 1, 10))
	m.AppendEntry(entry(testUser(2), 1, 3))
	m.AppendEntry(entry(testUser(1), 1, 5))

	c := replayed(t, m.As(minerA), nil, DefaultConfig())
	store := c.Reputations()
	require.Equal(t, uint64(2), store.Count())

	k1, err := reputation.ParseKey(testColony, uint256.NewInt(1), testUser(1))
	require.NoError(t, err)
	v1, ok := store.Get(k1)
	require.True(t, ok)
	assert.Equal(t, int64(15), v1.ScoreBig().Int64())
	assert.Equal(t, uint64(1), v1.UID)

	k2, _ := reputation.ParseKey(testColony, uint256.NewInt(1), testUser(2))
	v2, _ := store.Get(k2)
	assert.Equal(t, int64(3), v2.ScoreBig().Int64())
	assert.Equal(t, uint64(2), v2.UID)
	assert.Equal(t, uint64(3), c.NLogEntries())
}

func TestReplayDeterminism(t *testing.T) {
	m := sampleLedger(17)
	a := replayed(t, m.As(minerA), nil, DefaultConfig())
	b := replayed(t, m.As(minerB), newMemCache(t), DefaultConfig())
	assert.Equal(t, a.RootHash(), b.RootHash())
	assert.Equal(t, a.JustificationRootHash(), b.JustificationRootHash())
	assert.Equal(t, a.Reputations().Count(), b.Reputations().Count())
}

func TestJustificationReplayFidelity(t *testing.T) {
	const n = 12
	m := sampleLedger(n)
	c := replayed(t, m.As(minerA), nil, DefaultConfig())
	ctx := context.Background()

	for i := uint64(0); i <= n; i++ {
		rec, err := c.Record(i)
		require.NoError(t, err)
		require.Equal(t, i, rec.Index)

		prefix := ledger.NewMockLedger()
		for j := uint64(0); j < i; j++ {
			e, err := m.As(minerA).UpdateLogEntry(ctx, j)
			require.NoError(t, err)
			prefix.AppendEntry(e)
		}
		p := replayed(t, prefix.As(minerA), nil, DefaultConfig())
		if i > 0 {
			assert.Equal(t, p.RootHash(), rec.InterimHash, "record %d", i)
		}
		assert.Equal(t, p.Reputations().Count(), rec.NNodes, "record %d", i)
		assert.Equal(t, reputation.JustificationLeaf(rec.InterimHash, rec.NNodes), rec.JhLeafValue)

		proof, err := c.JustificationProof(i)
		require.NoError(t, err)
		require.NoError(t, trie.VerifyProof(c.JustificationRootHash(), common.Uint64ToBytes32(i), rec.JhLeafValue, proof))

		if i > 0 {
			require.NoError(t, trie.VerifyProof(rec.InterimHash, rec.JustUpdatedProof.Key, rec.JustUpdatedProof.Value, rec.JustUpdatedProof.Proof))
			if rec.Newest.NNodes > 0 {
				require.NoError(t, trie.VerifyProof(rec.InterimHash, rec.Newest.Key, rec.Newest.Value, rec.Newest.Proof))
			}
		}
		if i > 0 && i < n {
			v, err := reputation.DecodeValue(rec.NextUpdateProof.Value)
			require.NoError(t, err)
			if v.UID != 0 {
				require.NoError(t, trie.VerifyProof(rec.InterimHash, rec.NextUpdateProof.Key, rec.NextUpdateProof.Value, rec.NextUpdateProof.Proof))
			}
		}
	}
	_, err := c.Record(n + 1)
	assert.ErrorIs(t, err, minererrors.ErrMRecordMissing)
}

func TestFinalRecordMatchesSubmission(t *testing.T) {
	m := sampleLedger(5)
	c := replayed(t, m.As(minerA), nil, DefaultConfig())
	final, err := c.Record(5)
	require.NoError(t, err)
	assert.Equal(t, c.RootHash(), final.InterimHash)
	assert.Equal(t, c.Reputations().Count(), final.NNodes)
	assert.Equal(t, reputation.ZeroValue(), final.NextUpdateProof.Value)
	require.NoError(t, trie.VerifyProof(final.InterimHash, final.JustUpdatedProof.Key, final.JustUpdatedProof.Value, final.JustUpdatedProof.Proof))
}

func TestReplaySkipsMalformedEntry(t *testing.T) {
	m := ledger.NewMockLedger()
	m.AppendEntry(entry(testUser(1), 1, 10))
	bad := entry(testUser(2), 1, 3)
	bad.Colony = "0x1234"
	m.AppendEntry(bad)
	m.AppendEntry(entry(testUser(1), 1, 5))

	c := replayed(t, m.As(minerA), nil, DefaultConfig())
	assert.Equal(t, uint64(1), c.Skipped())
	assert.Equal(t, uint64(1), c.Reputations().Count())

	rec1, err := c.Record(1)
	require.NoError(t, err)
	rec2, err := c.Record(2)
	require.NoError(t, err)
	assert.Equal(t, rec1.InterimHash, rec2.InterimHash)
	assert.Equal(t, reputation.ZeroValue(), rec2.JustUpdatedProof.Value)

	cfg := DefaultConfig()
	cfg.StrictLog = true
	strict, err := NewMiningCycle(m.As(minerA), nil, cfg)
	require.NoError(t, err)
	err = strict.ReplayLog(context.Background())
	assert.ErrorIs(t, err, minererrors.ErrMMalformedLogEntry)
}

func TestReplayEmptyLog(t *testing.T) {
	m := ledger.NewMockLedger()
	c := replayed(t, m.As(minerA), nil, DefaultConfig())
	rec, err := c.Record(0)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, rec.InterimHash)
	assert.Equal(t, uint64(0), rec.NNodes)
	assert.Equal(t, trie.EmptyRootHash, c.RootHash())
}

func TestNotReplayed(t *testing.T) {
	c, err := NewMiningCycle(ledger.NewMockLedger().As(minerA), nil, DefaultConfig())
	require.NoError(t, err)
	_, err = c.Record(0)
	assert.ErrorIs(t, err, minererrors.ErrMCycleNotReplayed)
	assert.ErrorIs(t, c.SubmitRootHash(context.Background()), minererrors.ErrMCycleNotReplayed)
	_, _, err = c.GetMySubmissionRoundAndIndex(context.Background())
	assert.ErrorIs(t, err, minererrors.ErrMCycleNotReplayed)
}

func TestLoadCycle(t *testing.T) {
	m := sampleLedger(9)
	cache := newMemCache(t)
	c := replayed(t, m.As(minerA), cache, DefaultConfig())

	loaded, err := LoadCycle(m.As(minerA), cache, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, c.RootHash(), loaded.RootHash())
	assert.Equal(t, c.JustificationRootHash(), loaded.JustificationRootHash())
	assert.Equal(t, c.NLogEntries(), loaded.NLogEntries())
	for i := uint64(0); i <= c.NLogEntries(); i++ {
		want, _ := c.Record(i)
		got, err := loaded.Record(i)
		require.NoError(t, err)
		wantJSON, _ := want.Bytes()
		gotJSON, _ := got.Bytes()
		assert.JSONEq(t, string(wantJSON), string(gotJSON))
	}

	_, err = LoadCycle(m.As(minerA), newMemCache(t), DefaultConfig())
	assert.ErrorIs(t, err, minererrors.ErrMCycleNotReplayed)
}

func TestCacheDivergence(t *testing.T) {
	m := sampleLedger(4)
	cache := newMemCache(t)
	replayed(t, m.As(minerA), cache, DefaultConfig())

	// the ledger never confirmed the state now held in the cache
	cfg := DefaultConfig()
	cfg.StrictCache = true
	c, err := NewMiningCycle(m.As(minerA), cache, cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, c.ReplayLog(context.Background()), minererrors.ErrRCacheDiverged)

	first := replayed(t, m.As(minerB), nil, DefaultConfig())
	m.SetReputationRoot(first.RootHash(), first.Reputations().Count())
	c, err = NewMiningCycle(m.As(minerA), cache, cfg)
	require.NoError(t, err)
	require.NoError(t, c.ReplayLog(context.Background()))
}

// failingLedger fails the first fetch of entry failAt.
type failingLedger struct {
	ledger.Ledger
	failAt uint64
	failed bool
}

func (f *failingLedger) UpdateLogEntry(ctx context.Context, index uint64) (ledger.UpdateLogEntry, error) {
	if index == f.failAt && !f.failed {
		f.failed = true
		return ledger.UpdateLogEntry{}, fmt.Errorf("connection reset")
	}
	return f.Ledger.UpdateLogEntry(ctx, index)
}

func TestRestartAfterFailedReplay(t *testing.T) {
	ctx := context.Background()
	m := sampleLedger(6)
	clean := replayed(t, m.As(minerB), nil, DefaultConfig())

	cache := newMemCache(t)
	c, err := NewMiningCycle(&failingLedger{Ledger: m.As(minerA), failAt: 4}, cache, DefaultConfig())
	require.NoError(t, err)
	require.Error(t, c.ReplayLog(ctx))
	assert.False(t, c.Replayed())

	// the aborted replay left nothing behind
	pairs, err := cache.Reputations()
	require.NoError(t, err)
	assert.Empty(t, pairs)
	records, err := cache.Justifications()
	require.NoError(t, err)
	assert.Empty(t, records)

	restarted := replayed(t, m.As(minerA), cache, DefaultConfig())
	assert.Equal(t, clean.RootHash(), restarted.RootHash())
	assert.Equal(t, clean.Reputations().Count(), restarted.Reputations().Count())
	assert.Equal(t, clean.JustificationRootHash(), restarted.JustificationRootHash())

	loaded, err := LoadCycle(m.As(minerA), cache, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, clean.RootHash(), loaded.RootHash())
	assert.Equal(t, clean.JustificationRootHash(), loaded.JustificationRootHash())
}

func TestRetryReplayOnSameCycle(t *testing.T) {
	ctx := context.Background()
	m := sampleLedger(6)
	clean := replayed(t, m.As(minerB), nil, DefaultConfig())

	for _, cache := range []*storage.MinerStore{nil, newMemCache(t)} {
		c, err := NewMiningCycle(&failingLedger{Ledger: m.As(minerA), failAt: 4}, cache, DefaultConfig())
		require.NoError(t, err)
		require.Error(t, c.ReplayLog(ctx))
		require.NoError(t, c.ReplayLog(ctx))
		assert.Equal(t, clean.RootHash(), c.RootHash())
		assert.Equal(t, clean.Reputations().Count(), c.Reputations().Count())
		assert.Equal(t, clean.JustificationRootHash(), c.JustificationRootHash())
		assert.Equal(t, uint64(6), c.NLogEntries())
	}
}

func TestFailedReplayKeepsPreviousCycle(t *testing.T) {
	ctx := context.Background()
	m := sampleLedger(3)
	cache := newMemCache(t)
	first := replayed(t, m.As(minerA), cache, DefaultConfig())
	m.SetReputationRoot(first.RootHash(), first.Reputations().Count())

	for i := 0; i < 3; i++ {
		m.AppendEntry(entry(testUser(i), 7, 11))
	}
	c, err := NewMiningCycle(&failingLedger{Ledger: m.As(minerA), failAt: 1}, cache, DefaultConfig())
	require.NoError(t, err)
	require.Error(t, c.ReplayLog(ctx))

	loaded, err := LoadCycle(m.As(minerA), cache, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, first.RootHash(), loaded.RootHash())
	assert.Equal(t, first.JustificationRootHash(), loaded.JustificationRootHash())
	assert.Equal(t, uint64(3), loaded.NLogEntries())
}
