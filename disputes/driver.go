package disputes

import (
	"context"
	"fmt"
	"time"

	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/miner"
	"github.com/colorfulnotion/repminer/reputation"
)

// Driver answers dispute steps for one replayed mining cycle. Every answer
// is read from the cycle's justification records; nothing is replayed again.
type Driver struct {
	cycle *miner.MiningCycleContext
}

func NewDriver(cycle *miner.MiningCycleContext) *Driver {
	return &Driver{cycle: cycle}
}

func (d *Driver) Cycle() *miner.MiningCycleContext {
	return d.cycle
}

type position struct {
	round, index uint64
	mc           ledger.MiningCycle
	sub          ledger.Submission
}

func (d *Driver) locate(ctx context.Context) (*position, error) {
	round, index, err := d.cycle.GetMySubmissionRoundAndIndex(ctx)
	if err != nil {
		return nil, err
	}
	mc, err := d.cycle.Ledger().MiningCycle(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := mc.DisputeRound(ctx, round, index)
	if err != nil {
		return nil, err
	}
	return &position{round: round, index: index, mc: mc, sub: sub}, nil
}

// RespondToBinarySearchForChallenge submits our justification leaf at the
// midpoint of the current bounds and returns the bounds afterwards.
func (d *Driver) RespondToBinarySearchForChallenge(ctx context.Context) (SearchBounds, error) {
	pos, err := d.locate(ctx)
	if err != nil {
		return SearchBounds{}, err
	}
	return d.respondBinarySearch(ctx, pos)
}

func (d *Driver) respondBinarySearch(ctx context.Context, pos *position) (SearchBounds, error) {
	b := BoundsOf(pos.sub)
	if err := b.Validate(d.cycle.NLogEntries()); err != nil {
		return b, err
	}
	if b.Converged() {
		return b, fmt.Errorf("bounds %s: %w", b, minererrors.ErrDAlreadyConverged)
	}
	mid := b.Mid()
	rec, err := d.cycle.Record(mid)
	if err != nil {
		return b, err
	}
	proof, err := d.cycle.JustificationProof(mid)
	if err != nil {
		return b, err
	}
	if err := pos.mc.BinarySearchForChallenge(ctx, pos.round, pos.index, rec.JhLeafValue, proof); err != nil {
		return b, fmt.Errorf("binarySearchForChallenge leaf %d: %w", mid, err)
	}
	sub, err := pos.mc.DisputeRound(ctx, pos.round, pos.index)
	if err != nil {
		return b, err
	}
	after := BoundsOf(sub)
	log.Debug(log.DisputeMonitoring, "binary search step", "round", pos.round, "index", pos.index, "leaf", mid, "before", b, "after", after)
	return after, nil
}

// BuildChallengePayload assembles the challenge response for converged bounds.
func (d *Driver) BuildChallengePayload(ctx context.Context, round, index uint64, b SearchBounds) (*ChallengePayload, error) {
	if !b.Converged() {
		return nil, fmt.Errorf("bounds %s: %w", b, minererrors.ErrDNotConverged)
	}
	if err := b.Validate(d.cycle.NLogEntries()); err != nil {
		return nil, err
	}
	lastAgree, firstDisagree := b.Lo, b.Hi
	entry, err := d.cycle.Ledger().UpdateLogEntry(ctx, lastAgree)
	if err != nil {
		return nil, fmt.Errorf("update log entry %d: %w", lastAgree, err)
	}
	key, err := reputation.ParseKey(entry.Colony, entry.SkillID, entry.User)
	if err != nil {
		return nil, fmt.Errorf("log entry %d: %v: %w", lastAgree, err, minererrors.ErrDInvalidPayload)
	}
	agreeRec, err := d.cycle.Record(lastAgree)
	if err != nil {
		return nil, err
	}
	disagreeRec, err := d.cycle.Record(firstDisagree)
	if err != nil {
		return nil, err
	}
	agreeProof, err := d.cycle.JustificationProof(lastAgree)
	if err != nil {
		return nil, err
	}
	disagreeProof, err := d.cycle.JustificationProof(firstDisagree)
	if err != nil {
		return nil, err
	}
	p := &ChallengePayload{
		Round:                 round,
		Index:                 index,
		LastAgree:             lastAgree,
		FirstDisagree:         firstDisagree,
		ReputationKey:         key,
		AgreeState:            agreeRec.NextUpdateProof,
		DisagreeState:         disagreeRec.JustUpdatedProof,
		Newest:                agreeRec.Newest,
		AgreeJustification:    agreeProof,
		DisagreeJustification: disagreeProof,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// RespondToChallenge proves how the first disagreeing log entry should have
// been applied. The bounds must already have converged.
func (d *Driver) RespondToChallenge(ctx context.Context) error {
	pos, err := d.locate(ctx)
	if err != nil {
		return err
	}
	return d.respondChallenge(ctx, pos)
}

func (d *Driver) respondChallenge(ctx context.Context, pos *position) error {
	b := BoundsOf(pos.sub)
	p, err := d.BuildChallengePayload(ctx, pos.round, pos.index, b)
	if err != nil {
		return err
	}
	if err := pos.mc.RespondToChallenge(ctx, p.Args()); err != nil {
		return fmt.Errorf("respondToChallenge entry %d: %w", p.LastAgree, err)
	}
	log.Info(log.DisputeMonitoring, "challenge answered", "round", pos.round, "index", pos.index,
		"lastAgree", p.LastAgree, "firstDisagree", p.FirstDisagree, "key", p.ReputationKey)
	return nil
}

// Step takes the next action the dispute allows: a binary search response
// when the opponent has caught up, the challenge response once the bounds
// have converged, or nothing. done is true after the challenge response.
func (d *Driver) Step(ctx context.Context) (done bool, err error) {
	pos, err := d.locate(ctx)
	if err != nil {
		return false, err
	}
	opp, err := pos.mc.DisputeRound(ctx, pos.round, pos.index^1)
	if err != nil {
		return false, fmt.Errorf("round %d index %d: %v: %w", pos.round, pos.index, err, minererrors.ErrDNoOpponent)
	}
	if pos.sub.JRH.IsZero() || opp.JRH.IsZero() {
		log.Debug(log.DisputeMonitoring, "waiting for justification root hashes", "round", pos.round, "index", pos.index)
		return false, nil
	}
	if BoundsOf(pos.sub).Converged() {
		return true, d.respondChallenge(ctx, pos)
	}
	if pos.sub.ChallengeStepCompleted > opp.ChallengeStepCompleted {
		log.Trace(log.DisputeMonitoring, "waiting for opponent", "step", pos.sub.ChallengeStepCompleted)
		return false, nil
	}
	_, err = d.respondBinarySearch(ctx, pos)
	return false, err
}

// Run calls Step every interval until the challenge has been answered or a
// step fails.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("dispute poll interval %v must be positive", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := d.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
