package miner

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
)

// Slot is one probed position of the dispute bracket. An empty slot means the
// lookup failed, which ends the round.
type Slot struct {
	Round      uint64
	Index      uint64
	Occupied   bool
	Submission ledger.Submission
	Err        error
}

// SlotIterator walks the dispute bracket round by round. A failed lookup moves
// it to index 0 of the next round. It gives up after maxRounds rounds or
// maxIndex probes within one round.
type SlotIterator struct {
	cycle     ledger.MiningCycle
	round     uint64
	index     uint64
	maxRounds uint64
	maxIndex  uint64
	lastErr   error
}

func NewSlotIterator(cycle ledger.MiningCycle, maxRounds, maxIndex uint64) *SlotIterator {
	return &SlotIterator{cycle: cycle, maxRounds: maxRounds, maxIndex: maxIndex}
}

// Next probes the next slot. It returns ErrMSlotNotFound once the bounds are
// exhausted.
func (it *SlotIterator) Next(ctx context.Context) (Slot, error) {
	if err := ctx.Err(); err != nil {
		return Slot{}, err
	}
	if it.index >= it.maxIndex {
		it.round++
		it.index = 0
	}
	if it.round >= it.maxRounds {
		return Slot{}, fmt.Errorf("probed %d rounds (last error: %v): %w", it.maxRounds, it.lastErr, minererrors.ErrMSlotNotFound)
	}
	slot := Slot{Round: it.round, Index: it.index}
	sub, err := it.cycle.DisputeRound(ctx, it.round, it.index)
	if err != nil {
		slot.Err = err
		it.lastErr = err
		it.round++
		it.index = 0
		return slot, nil
	}
	slot.Occupied = true
	slot.Submission = sub
	it.index++
	return slot, nil
}

// FindSubmission returns the first slot whose proposed root is root.
func (it *SlotIterator) FindSubmission(ctx context.Context, root common.Hash) (Slot, error) {
	for {
		slot, err := it.Next(ctx)
		if err != nil {
			return Slot{}, err
		}
		if slot.Occupied && slot.Submission.ProposedNewRootHash == root {
			return slot, nil
		}
	}
}

// GetMySubmissionRoundAndIndex locates the submission of this cycle's root
// hash in the dispute bracket.
func (c *MiningCycleContext) GetMySubmissionRoundAndIndex(ctx context.Context) (uint64, uint64, error) {
	if !c.replayed {
		return 0, 0, minererrors.ErrMCycleNotReplayed
	}
	mc, err := c.ledger.MiningCycle(ctx)
	if err != nil {
		return 0, 0, err
	}
	slot, err := NewSlotIterator(mc, c.cfg.MaxRounds, c.cfg.MaxRoundIndex).FindSubmission(ctx, c.RootHash())
	if err != nil {
		return 0, 0, err
	}
	log.Debug(log.MinerMonitoring, "submission located", "round", slot.Round, "index", slot.Index, "root", c.RootHash())
	return slot.Round, slot.Index, nil
}
