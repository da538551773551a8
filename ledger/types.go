package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/trie"
	"github.com/holiman/uint256"
)

// UpdateLogEntry is one entry of the on-chain reputation update log. Addresses
// are carried as strings because the replay engine validates them itself.
type UpdateLogEntry struct {
	User             string       `json:"user"`
	Amount           *big.Int     `json:"amount"`
	SkillID          *uint256.Int `json:"skillId"`
	Colony           string       `json:"colony"`
	NUpdates         uint64       `json:"nUpdates"`
	NPreviousUpdates uint64       `json:"nPreviousUpdates"`
}

func (e UpdateLogEntry) String() string {
	return fmt.Sprintf("user=%s amount=%s skill=%s colony=%s", e.User, e.Amount, e.SkillID.Dec(), e.Colony)
}

// Submission is a disputeRounds record. LowerBound and UpperBound are the
// binary search bounds: the last leaf both parties agree on and the first
// leaf known to differ.
type Submission struct {
	ProposedNewRootHash          common.Hash `json:"proposedNewRootHash"`
	NNodes                       uint64      `json:"nNodes"`
	LastResponseTimestamp        uint64      `json:"lastResponseTimestamp"`
	ChallengeStepCompleted       uint64      `json:"challengeStepCompleted"`
	JRH                          common.Hash `json:"jrh"`
	IntermediateReputationHash   common.Hash `json:"intermediateReputationHash"`
	IntermediateReputationNNodes uint64      `json:"intermediateReputationNNodes"`
	JrhNnodes                    uint64      `json:"jrhNnodes"`
	LowerBound                   uint64      `json:"lowerBound"`
	UpperBound                   uint64      `json:"upperBound"`
}

// ChallengeArgs is the argument list of respondToChallenge in contract order.
type ChallengeArgs struct {
	U                             [9]*big.Int
	ReputationKey                 []byte
	ReputationSiblings            []common.Hash
	AgreeStateReputationValue     []byte
	AgreeStateSiblings            []common.Hash
	DisagreeStateReputationValue  []byte
	DisagreeStateSiblings         []common.Hash
	PreviousNewReputationKey      []byte
	PreviousNewReputationValue    []byte
	PreviousNewReputationSiblings []common.Hash
}

// Ledger is the colony network contract as seen by one miner.
type Ledger interface {
	UpdateLogLength(ctx context.Context) (uint64, error)
	UpdateLogEntry(ctx context.Context, index uint64) (UpdateLogEntry, error)
	ReputationRootHash(ctx context.Context) (common.Hash, error)
	MiningCycle(ctx context.Context) (MiningCycle, error)
}

// MiningCycle is the active reputation mining cycle contract. Every write
// blocks until the transaction is mined.
type MiningCycle interface {
	Address() common.Address
	SubmitNewHash(ctx context.Context, root common.Hash, nNodes uint64, entryIndex uint64) error
	SubmitJRH(ctx context.Context, round, index uint64, jrh common.Hash, first, last trie.Proof) error
	DisputeRound(ctx context.Context, round, index uint64) (Submission, error)
	BinarySearchForChallenge(ctx context.Context, round, index uint64, leaf []byte, proof trie.Proof) error
	RespondToChallenge(ctx context.Context, args ChallengeArgs) error
}

func maskToBig(p trie.Proof) *big.Int {
	return p.BranchMask.ToBig()
}
