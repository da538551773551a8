package disputes

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/reputation"
	"github.com/colorfulnotion/repminer/trie"
)

// ChallengePayload is everything respondToChallenge needs to prove how log
// entry LastAgree changes the disputed reputation.
type ChallengePayload struct {
	Round         uint64
	Index         uint64
	LastAgree     uint64
	FirstDisagree uint64

	ReputationKey reputation.Key
	// AgreeState is the reputation before the entry (nextUpdateProof of the
	// last agreeing record).
	AgreeState reputation.Bundle
	// DisagreeState is the reputation after the entry (justUpdatedProof of
	// the first disagreeing record).
	DisagreeState reputation.Bundle
	// Newest is the reputation with the highest uid in the agreed state.
	Newest reputation.Bundle

	AgreeJustification    trie.Proof
	DisagreeJustification trie.Proof
}

// Validate rejects payloads the contract would reject for shape alone.
func (p *ChallengePayload) Validate() error {
	if p.FirstDisagree != p.LastAgree+1 {
		return fmt.Errorf("leaves %d and %d not adjacent: %w", p.LastAgree, p.FirstDisagree, minererrors.ErrDInvalidPayload)
	}
	if !bytes.Equal(p.DisagreeState.Key, p.ReputationKey.Bytes()) {
		return fmt.Errorf("disagree state key %x: %w", p.DisagreeState.Key, minererrors.ErrDInvalidPayload)
	}
	if !bytes.Equal(p.AgreeState.Key, p.ReputationKey.Bytes()) {
		return fmt.Errorf("agree state key %x: %w", p.AgreeState.Key, minererrors.ErrDInvalidPayload)
	}
	for name, v := range map[string][]byte{"agree": p.AgreeState.Value, "disagree": p.DisagreeState.Value, "newest": p.Newest.Value} {
		if len(v) != reputation.ValueLength {
			return fmt.Errorf("%s value of %d bytes: %w", name, len(v), minererrors.ErrDInvalidPayload)
		}
	}
	if len(p.Newest.Key) != reputation.KeyLength {
		return fmt.Errorf("newest key of %d bytes: %w", len(p.Newest.Key), minererrors.ErrDInvalidPayload)
	}
	for name, proof := range map[string]trie.Proof{
		"reputation":             p.DisagreeState.Proof,
		"newest":                 p.Newest.Proof,
		"agree justification":    p.AgreeJustification,
		"disagree justification": p.DisagreeJustification,
	} {
		if err := proof.Validate(); err != nil {
			return fmt.Errorf("%s proof: %v: %w", name, err, minererrors.ErrDInvalidPayload)
		}
	}
	return nil
}

// Args lays the payload out in respondToChallenge argument order.
func (p *ChallengePayload) Args() ledger.ChallengeArgs {
	u := [9]*big.Int{
		new(big.Int).SetUint64(p.Round),
		new(big.Int).SetUint64(p.Index),
		p.DisagreeState.Proof.BranchMask.ToBig(),
		new(big.Int).SetUint64(p.AgreeState.NNodes),
		p.AgreeJustification.BranchMask.ToBig(),
		new(big.Int).SetUint64(p.DisagreeState.NNodes),
		p.DisagreeJustification.BranchMask.ToBig(),
		p.Newest.Proof.BranchMask.ToBig(),
		new(big.Int),
	}
	return ledger.ChallengeArgs{
		U:                             u,
		ReputationKey:                 p.ReputationKey.Bytes(),
		ReputationSiblings:            p.DisagreeState.Proof.Siblings,
		AgreeStateReputationValue:     p.AgreeState.Value,
		AgreeStateSiblings:            p.AgreeJustification.Siblings,
		DisagreeStateReputationValue:  p.DisagreeState.Value,
		DisagreeStateSiblings:         p.DisagreeJustification.Siblings,
		PreviousNewReputationKey:      p.Newest.Key,
		PreviousNewReputationValue:    p.Newest.Value,
		PreviousNewReputationSiblings: p.Newest.Proof.Siblings,
	}
}
