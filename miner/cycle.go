// Package miner replays the reputation update log into a reputation trie,
// builds the justification trie that backs dispute responses, and submits
// the results to the mining cycle contract.
package miner

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/reputation"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/colorfulnotion/repminer/trie"
)

// ScoreFunc returns the amount applied to the reputation named by entry.
type ScoreFunc func(index uint64, entry ledger.UpdateLogEntry) *big.Int

// LedgerScore applies the amount recorded in the log.
func LedgerScore(index uint64, entry ledger.UpdateLogEntry) *big.Int {
	return entry.Amount
}

// OffsetScore is LedgerScore except that delta is added at entry target. It
// produces a deliberately wrong state for exercising disputes.
func OffsetScore(target uint64, delta *big.Int) ScoreFunc {
	return func(index uint64, entry ledger.UpdateLogEntry) *big.Int {
		if index == target {
			return new(big.Int).Add(entry.Amount, delta)
		}
		return entry.Amount
	}
}

type Config struct {
	EntryIndex    uint64
	StrictLog     bool
	StrictCache   bool
	MaxRounds     uint64
	MaxRoundIndex uint64
	Score         ScoreFunc
}

func DefaultConfig() Config {
	return Config{
		EntryIndex:    1,
		MaxRounds:     64,
		MaxRoundIndex: 1024,
		Score:         LedgerScore,
	}
}

// MiningCycleContext owns the state of one mining cycle: the reputation store,
// the justification trie and its records. It is built once by ReplayLog (or
// LoadCycle) and is read-only afterwards.
type MiningCycleContext struct {
	ledger ledger.Ledger
	cache  *storage.MinerStore
	cfg    Config

	reputations   *reputation.Store
	justification *trie.PatriciaTree
	records       []JustificationRecord
	nLogEntries   uint64
	skipped       uint64
	replayed      bool
	dirty         bool // a replay was started and did not finish
	batch         *storage.CycleBatch
}

// NewMiningCycle loads the reputation state from cache (nil for memory only).
func NewMiningCycle(l ledger.Ledger, cache *storage.MinerStore, cfg Config) (*MiningCycleContext, error) {
	if cfg.Score == nil {
		cfg.Score = LedgerScore
	}
	store, err := reputation.LoadStore(cache)
	if err != nil {
		return nil, err
	}
	return &MiningCycleContext{
		ledger:        l,
		cache:         cache,
		cfg:           cfg,
		reputations:   store,
		justification: trie.NewPatriciaTree("justification"),
	}, nil
}

func (c *MiningCycleContext) Ledger() ledger.Ledger { return c.ledger }
func (c *MiningCycleContext) Reputations() *reputation.Store { return c.reputations }
func (c *MiningCycleContext) Config() Config { return c.cfg }
func (c *MiningCycleContext) NLogEntries() uint64 { return c.nLogEntries }
func (c *MiningCycleContext) Skipped() uint64 { return c.skipped }
func (c *MiningCycleContext) Replayed() bool { return c.replayed }
func (c *MiningCycleContext) RootHash() common.Hash { return c.reputations.RootHash() }
func (c *MiningCycleContext) JustificationRootHash() common.Hash { return c.justification.RootHash() }

// Record returns justification record i, 0 <= i <= NLogEntries().
func (c *MiningCycleContext) Record(i uint64) (JustificationRecord, error) {
	if !c.replayed {
		return JustificationRecord{}, minererrors.ErrMCycleNotReplayed
	}
	if i >= uint64(len(c.records)) {
		return JustificationRecord{}, fmt.Errorf("record %d of %d: %w", i, len(c.records), minererrors.ErrMRecordMissing)
	}
	return c.records[i], nil
}

// JustificationProof is the justification trie proof for leaf i.
func (c *MiningCycleContext) JustificationProof(i uint64) (trie.Proof, error) {
	if !c.replayed {
		return trie.Proof{}, minererrors.ErrMCycleNotReplayed
	}
	proof, err := c.justification.GetProof(justificationKey(i))
	if err != nil {
		return trie.Proof{}, fmt.Errorf("justification leaf %d: %w", i, err)
	}
	return proof, nil
}

func justificationKey(i uint64) []byte {
	return common.Uint64ToBytes32(i)
}

// checkCache compares the state carried over from the last cycle with the
// root the ledger confirmed.
func (c *MiningCycleContext) checkCache(ledgerRoot common.Hash) error {
	err := c.reputations.VerifyAgainst(ledgerRoot)
	if err == nil {
		return nil
	}
	if c.cfg.StrictCache {
		return err
	}
	log.Warn(log.MinerMonitoring, "reputation cache does not match ledger root", "err", err)
	return nil
}
