package miner

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
)

// SubmitRootHash submits the replayed root hash and reputation count to the
// active mining cycle.
func (c *MiningCycleContext) SubmitRootHash(ctx context.Context) error {
	if !c.replayed {
		return minererrors.ErrMCycleNotReplayed
	}
	mc, err := c.ledger.MiningCycle(ctx)
	if err != nil {
		return err
	}
	root, count := c.RootHash(), c.reputations.Count()
	if err := mc.SubmitNewHash(ctx, root, count, c.cfg.EntryIndex); err != nil {
		return fmt.Errorf("submitNewHash: %w", err)
	}
	log.Info(log.MinerMonitoring, "root hash submitted", "cycle", mc.Address(), "root", root, "nNodes", count, "entryIndex", c.cfg.EntryIndex)
	return nil
}

// SubmitJustificationRootHash submits the justification root hash with the
// proofs of its first and last leaves, at our slot in the bracket.
func (c *MiningCycleContext) SubmitJustificationRootHash(ctx context.Context) error {
	if !c.replayed {
		return minererrors.ErrMCycleNotReplayed
	}
	first, err := c.JustificationProof(0)
	if err != nil {
		return err
	}
	last, err := c.JustificationProof(c.nLogEntries)
	if err != nil {
		return err
	}
	round, index, err := c.GetMySubmissionRoundAndIndex(ctx)
	if err != nil {
		return err
	}
	mc, err := c.ledger.MiningCycle(ctx)
	if err != nil {
		return err
	}
	jrh := c.JustificationRootHash()
	if err := mc.SubmitJRH(ctx, round, index, jrh, first, last); err != nil {
		return fmt.Errorf("submitJRH: %w", err)
	}
	log.Info(log.MinerMonitoring, "justification root hash submitted", "round", round, "index", index, "jrh", jrh)
	return nil
}
