package miner

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/reputation"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/colorfulnotion/repminer/trie"
)

// ReplayLog applies every update log entry to the reputation store, in order,
// recording a justification record before each one and a final record after
// the last. Ledger failures abort the cycle; nothing reaches the cache until
// the final record is written, and a later call starts again from the state
// the cycle began with.
func (c *MiningCycleContext) ReplayLog(ctx context.Context) error {
	if c.replayed {
		return fmt.Errorf("cycle already replayed")
	}
	if c.dirty {
		store, err := reputation.LoadStore(c.cache)
		if err != nil {
			return err
		}
		c.reputations = store
		log.Info(log.MinerMonitoring, "replay restarted", "root", store.RootHash(), "reputations", store.Count())
	}
	n, err := c.ledger.UpdateLogLength(ctx)
	if err != nil {
		return fmt.Errorf("update log length: %w", err)
	}
	ledgerRoot, err := c.ledger.ReputationRootHash(ctx)
	if err != nil {
		return fmt.Errorf("reputation root hash: %w", err)
	}
	if err := c.checkCache(ledgerRoot); err != nil {
		return err
	}
	c.dirty = true
	c.batch = nil
	if c.cache != nil {
		c.batch = storage.NewCycleBatch()
		c.reputations.Stage(c.batch)
		defer c.reputations.Stage(nil)
	}
	log.Info(log.MinerMonitoring, "replay started", "entries", n, "ledgerRoot", ledgerRoot, "reputations", c.reputations.Count())

	c.justification = trie.NewPatriciaTree("justification")
	c.records = make([]JustificationRecord, 0, n+1)
	c.skipped = 0

	var prevEntry ledger.UpdateLogEntry
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := JustificationRecord{
			Index:            i,
			InterimHash:      c.reputations.RootHash(),
			NNodes:           c.reputations.Count(),
			JustUpdatedProof: reputation.EmptyBundle(),
		}
		if i == 0 {
			rec.InterimHash = ledgerRoot
		} else {
			if rec.JustUpdatedProof, err = c.bundleFor(prevEntry); err != nil {
				return fmt.Errorf("record %d just updated proof: %w", i, err)
			}
		}
		if rec.Newest, err = c.reputations.Newest(); err != nil {
			return fmt.Errorf("record %d newest reputation: %w", i, err)
		}
		if err := c.addLeaf(&rec); err != nil {
			return err
		}

		entry, err := c.ledger.UpdateLogEntry(ctx, i)
		if err != nil {
			return fmt.Errorf("update log entry %d: %w", i, err)
		}
		if rec.NextUpdateProof, err = c.bundleFor(entry); err != nil {
			return fmt.Errorf("record %d next update proof: %w", i, err)
		}
		if err := c.persist(rec); err != nil {
			return err
		}

		ok, err := c.reputations.Upsert(entry.Colony, entry.SkillID, entry.User, c.cfg.Score(i, entry), i)
		if err != nil {
			return err
		}
		if !ok {
			c.skipped++
			log.Warn(log.MinerMonitoring, "log entry skipped", "index", i, "entry", entry)
			if c.cfg.StrictLog {
				return fmt.Errorf("log entry %d (%s): %w", i, entry, minererrors.ErrMMalformedLogEntry)
			}
		}
		prevEntry = entry
	}

	final := JustificationRecord{
		Index:            n,
		InterimHash:      c.reputations.RootHash(),
		NNodes:           c.reputations.Count(),
		JustUpdatedProof: reputation.EmptyBundle(),
		NextUpdateProof:  reputation.EmptyBundle(),
	}
	if n == 0 {
		final.InterimHash = ledgerRoot
	} else if final.JustUpdatedProof, err = c.bundleFor(prevEntry); err != nil {
		return fmt.Errorf("final record just updated proof: %w", err)
	}
	if final.Newest, err = c.reputations.Newest(); err != nil {
		return fmt.Errorf("final record newest reputation: %w", err)
	}
	if err := c.addLeaf(&final); err != nil {
		return err
	}
	if err := c.persist(final); err != nil {
		return err
	}
	if c.batch != nil {
		if err := c.cache.Commit(c.batch); err != nil {
			return err
		}
		c.batch = nil
	}

	c.dirty = false
	c.nLogEntries = n
	c.replayed = true
	log.Info(log.MinerMonitoring, "replay finished", "entries", n, "skipped", c.skipped,
		"root", c.reputations.RootHash(), "reputations", c.reputations.Count(), "jrh", c.justification.RootHash())
	return nil
}

// bundleFor is the current proof of the key entry names. Entries whose
// addresses do not parse name no key and get the empty bundle.
func (c *MiningCycleContext) bundleFor(entry ledger.UpdateLogEntry) (reputation.Bundle, error) {
	key, err := reputation.ParseKey(entry.Colony, entry.SkillID, entry.User)
	if err != nil {
		return reputation.EmptyBundle(), nil
	}
	return c.reputations.Bundle(key)
}

func (c *MiningCycleContext) addLeaf(rec *JustificationRecord) error {
	rec.JhLeafValue = reputation.JustificationLeaf(rec.InterimHash, rec.NNodes)
	if err := c.justification.Insert(justificationKey(rec.Index), rec.JhLeafValue); err != nil {
		return fmt.Errorf("justification leaf %d: %w", rec.Index, err)
	}
	log.Trace(log.MinerMonitoring, "justification leaf", "index", rec.Index, "interimHash", common.Str(rec.InterimHash), "nNodes", rec.NNodes)
	return nil
}

func (c *MiningCycleContext) persist(rec JustificationRecord) error {
	c.records = append(c.records, rec)
	if c.batch == nil {
		return nil
	}
	b, err := rec.Bytes()
	if err != nil {
		return err
	}
	c.batch.PutJustification(rec.Index, b)
	return nil
}

// LoadCycle restores a replayed cycle from the records persisted by an
// earlier ReplayLog, so dispute steps can be answered after a restart.
func LoadCycle(l ledger.Ledger, cache *storage.MinerStore, cfg Config) (*MiningCycleContext, error) {
	if cache == nil {
		return nil, fmt.Errorf("no cache to load from: %w", minererrors.ErrMCycleNotReplayed)
	}
	c, err := NewMiningCycle(l, cache, cfg)
	if err != nil {
		return nil, err
	}
	raw, err := cache.Justifications()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no persisted justification records: %w", minererrors.ErrMCycleNotReplayed)
	}
	for i, b := range raw {
		rec, err := decodeRecord(b)
		if err != nil {
			return nil, fmt.Errorf("justification record %d: %w", i, err)
		}
		if rec.Index != uint64(i) {
			return nil, fmt.Errorf("justification record %d has index %d: %w", i, rec.Index, minererrors.ErrMRecordMissing)
		}
		if err := c.justification.Insert(justificationKey(rec.Index), rec.JhLeafValue); err != nil {
			return nil, err
		}
		c.records = append(c.records, rec)
	}
	c.nLogEntries = uint64(len(raw) - 1)
	c.replayed = true
	log.Info(log.MinerMonitoring, "cycle loaded", "entries", c.nLogEntries, "root", c.RootHash(), "jrh", c.JustificationRootHash())
	return c, nil
}
