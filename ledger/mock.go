package ledger

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/reputation"
	"github.com/colorfulnotion/repminer/trie"
)

// MockLedger is an in-memory colony network with a single mining cycle. The
// cycle keeps a dispute bracket where submission i is paired with i^1 and
// checks JRH, binary search and challenge proofs with trie.ImpliedRoot, the
// same way the contract does.
type MockLedger struct {
	mu      sync.Mutex
	entries []UpdateLogEntry
	root    common.Hash
	nNodes  uint64
	cycle   common.Address
	rounds  [][]*mockSubmission
	clock   uint64
}

type mockSubmission struct {
	Submission
	submitters []common.Address
	entryIndex uint64
	leaves     map[uint64][]byte
	won        bool
	lost       bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		cycle: common.BytesToAddress(common.Keccak256([]byte("mining-cycle")).Bytes()),
	}
}

// AppendEntry adds an entry to the update log.
func (m *MockLedger) AppendEntry(e UpdateLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

// SetReputationRoot sets the confirmed reputation state of the last cycle.
func (m *MockLedger) SetReputationRoot(root common.Hash, nNodes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = root
	m.nNodes = nNodes
}

// As returns the ledger as seen by miner.
func (m *MockLedger) As(miner common.Address) Ledger {
	return &mockView{m: m, miner: miner}
}

// Round returns a snapshot of the submissions in round.
func (m *MockLedger) Round(round uint64) []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if round >= uint64(len(m.rounds)) {
		return nil
	}
	out := make([]Submission, len(m.rounds[round]))
	for i, s := range m.rounds[round] {
		out[i] = s.Submission
	}
	return out
}

// Outcome reports whether the submission at (round, index) has won or lost
// its challenge.
func (m *MockLedger) Outcome(round, index uint64) (won, lost bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.submission(round, index)
	if err != nil {
		return false, false
	}
	return s.won, s.lost
}

func (m *MockLedger) submission(round, index uint64) (*mockSubmission, error) {
	if round >= uint64(len(m.rounds)) || index >= uint64(len(m.rounds[round])) {
		return nil, fmt.Errorf("disputeRounds(%d,%d): %w", round, index, minererrors.ErrLIndexOutOfRange)
	}
	return m.rounds[round][index], nil
}

func (m *MockLedger) opponent(round, index uint64) (*mockSubmission, error) {
	opp, err := m.submission(round, index^1)
	if err != nil {
		return nil, fmt.Errorf("round %d index %d: %w", round, index, minererrors.ErrDNoOpponent)
	}
	return opp, nil
}

func (m *MockLedger) owned(round, index uint64, miner common.Address) (*mockSubmission, error) {
	s, err := m.submission(round, index)
	if err != nil {
		return nil, err
	}
	for _, a := range s.submitters {
		if a == miner {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%s did not submit (%d,%d): %w", miner, round, index, minererrors.ErrLTxFailed)
}

func (m *MockLedger) tick() uint64 {
	m.clock++
	return m.clock
}

type mockView struct {
	m     *MockLedger
	miner common.Address
}

func (v *mockView) UpdateLogLength(ctx context.Context) (uint64, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return uint64(len(v.m.entries)), nil
}

func (v *mockView) UpdateLogEntry(ctx context.Context, index uint64) (UpdateLogEntry, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if index >= uint64(len(v.m.entries)) {
		return UpdateLogEntry{}, fmt.Errorf("log entry %d of %d: %w", index, len(v.m.entries), minererrors.ErrLIndexOutOfRange)
	}
	return v.m.entries[index], nil
}

func (v *mockView) ReputationRootHash(ctx context.Context) (common.Hash, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return v.m.root, nil
}

func (v *mockView) MiningCycle(ctx context.Context) (MiningCycle, error) {
	return &mockCycle{m: v.m, miner: v.miner}, nil
}

type mockCycle struct {
	m     *MockLedger
	miner common.Address
}

func (c *mockCycle) Address() common.Address { return c.m.cycle }

func (c *mockCycle) SubmitNewHash(ctx context.Context, root common.Hash, nNodes uint64, entryIndex uint64) error {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rounds) == 0 {
		m.rounds = append(m.rounds, nil)
	}
	for _, s := range m.rounds[0] {
		for _, a := range s.submitters {
			if a == c.miner {
				return fmt.Errorf("%s already submitted: %w", c.miner, minererrors.ErrLTxFailed)
			}
		}
		if s.ProposedNewRootHash == root && s.NNodes == nNodes {
			s.submitters = append(s.submitters, c.miner)
			return nil
		}
	}
	s := &mockSubmission{
		Submission: Submission{
			ProposedNewRootHash:   root,
			NNodes:                nNodes,
			LastResponseTimestamp: m.tick(),
		},
		submitters: []common.Address{c.miner},
		entryIndex: entryIndex,
		leaves:     make(map[uint64][]byte),
	}
	m.rounds[0] = append(m.rounds[0], s)
	log.Debug(log.LedgerMonitoring, "mock submitNewHash", "miner", c.miner, "root", root, "nNodes", nNodes, "index", len(m.rounds[0])-1)
	return nil
}

func (c *mockCycle) SubmitJRH(ctx context.Context, round, index uint64, jrh common.Hash, first, last trie.Proof) error {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.owned(round, index, c.miner)
	if err != nil {
		return err
	}
	n := uint64(len(m.entries))
	leaf0 := reputation.JustificationLeaf(m.root, m.nNodes)
	leafN := reputation.JustificationLeaf(s.ProposedNewRootHash, s.NNodes)
	if err := trie.VerifyProof(jrh, justificationKey(0), leaf0, first); err != nil {
		return fmt.Errorf("submitJRH first leaf: %w", err)
	}
	if err := trie.VerifyProof(jrh, justificationKey(n), leafN, last); err != nil {
		return fmt.Errorf("submitJRH last leaf: %w", err)
	}
	s.JRH = jrh
	s.JrhNnodes = n + 1
	s.LowerBound = 0
	s.UpperBound = n
	s.leaves[0] = leaf0
	s.leaves[n] = leafN
	s.LastResponseTimestamp = m.tick()
	return nil
}

func (c *mockCycle) DisputeRound(ctx context.Context, round, index uint64) (Submission, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	s, err := c.m.submission(round, index)
	if err != nil {
		return Submission{}, err
	}
	return s.Submission, nil
}

func (c *mockCycle) BinarySearchForChallenge(ctx context.Context, round, index uint64, leaf []byte, proof trie.Proof) error {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.owned(round, index, c.miner)
	if err != nil {
		return err
	}
	opp, err := m.opponent(round, index)
	if err != nil {
		return err
	}
	if s.JRH.IsZero() || opp.JRH.IsZero() {
		return fmt.Errorf("JRH not submitted by both parties: %w", minererrors.ErrDNoOpponent)
	}
	if s.UpperBound-s.LowerBound <= 1 {
		return fmt.Errorf("bounds (%d,%d): %w", s.LowerBound, s.UpperBound, minererrors.ErrDAlreadyConverged)
	}
	if s.ChallengeStepCompleted > opp.ChallengeStepCompleted {
		return fmt.Errorf("step %d already answered, waiting for opponent: %w", s.ChallengeStepCompleted, minererrors.ErrLTxFailed)
	}
	mid := (s.LowerBound + s.UpperBound) / 2
	if err := trie.VerifyProof(s.JRH, justificationKey(mid), leaf, proof); err != nil {
		return fmt.Errorf("binarySearchForChallenge leaf %d: %w", mid, err)
	}
	root, count, err := reputation.DecodeJustificationLeaf(leaf)
	if err != nil {
		return err
	}
	s.leaves[mid] = common.CopyBytes(leaf)
	s.IntermediateReputationHash = root
	s.IntermediateReputationNNodes = count
	s.ChallengeStepCompleted++
	s.LastResponseTimestamp = m.tick()

	if s.ChallengeStepCompleted == opp.ChallengeStepCompleted {
		if bytes.Equal(s.leaves[mid], opp.leaves[mid]) {
			s.LowerBound, opp.LowerBound = mid, mid
		} else {
			s.UpperBound, opp.UpperBound = mid, mid
		}
		log.Debug(log.LedgerMonitoring, "mock binary search step", "round", round, "pair", index/2, "lo", s.LowerBound, "hi", s.UpperBound)
	}
	return nil
}

func (c *mockCycle) RespondToChallenge(ctx context.Context, args ChallengeArgs) error {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range args.U {
		if u == nil {
			return fmt.Errorf("u[%d] unset: %w", i, minererrors.ErrDInvalidPayload)
		}
	}
	round, index := args.U[0].Uint64(), args.U[1].Uint64()
	s, err := m.owned(round, index, c.miner)
	if err != nil {
		return err
	}
	opp, err := m.opponent(round, index)
	if err != nil {
		return err
	}
	lo, hi := s.LowerBound, s.UpperBound
	if hi-lo != 1 {
		return fmt.Errorf("bounds (%d,%d): %w", lo, hi, minererrors.ErrDNotConverged)
	}
	if lo >= uint64(len(m.entries)) {
		return fmt.Errorf("bound %d: %w", lo, minererrors.ErrDBoundsOutOfRange)
	}
	entry := m.entries[lo]
	key, err := reputation.ParseKey(entry.Colony, entry.SkillID, entry.User)
	if err != nil {
		return fmt.Errorf("log entry %d not applicable: %w", lo, minererrors.ErrDChallengeRejected)
	}
	if !bytes.Equal(args.ReputationKey, key.Bytes()) {
		return fmt.Errorf("reputation key %x: %w", args.ReputationKey, minererrors.ErrDInvalidPayload)
	}
	agree, err := reputation.DecodeValue(args.AgreeStateReputationValue)
	if err != nil {
		return fmt.Errorf("agree state value: %w", minererrors.ErrDInvalidPayload)
	}
	agreeNNodes, disagreeNNodes := args.U[3].Uint64(), args.U[5].Uint64()

	repProof := proofFromArgs(args.U[2], args.ReputationSiblings)
	disagreeRoot, err := trie.ImpliedRoot(key.Bytes(), args.DisagreeStateReputationValue, repProof)
	if err != nil {
		return err
	}
	if err := trie.VerifyProof(s.JRH, justificationKey(hi), reputation.JustificationLeaf(disagreeRoot, disagreeNNodes),
		proofFromArgs(args.U[6], args.DisagreeStateSiblings)); err != nil {
		return fmt.Errorf("disagree state: %w", err)
	}

	var expected reputation.Value
	if agree.UID != 0 {
		agreeRoot, err := trie.ImpliedRoot(key.Bytes(), args.AgreeStateReputationValue, repProof)
		if err != nil {
			return err
		}
		if err := trie.VerifyProof(s.JRH, justificationKey(lo), reputation.JustificationLeaf(agreeRoot, agreeNNodes),
			proofFromArgs(args.U[4], args.AgreeStateSiblings)); err != nil {
			return fmt.Errorf("agree state: %w", err)
		}
		if disagreeNNodes != agreeNNodes {
			return fmt.Errorf("existing key changed count %d -> %d: %w", agreeNNodes, disagreeNNodes, minererrors.ErrDChallengeRejected)
		}
		expected = agree.Add(entry.Amount)
	} else {
		if agreeNNodes > 0 {
			newestRoot, err := trie.ImpliedRoot(args.PreviousNewReputationKey, args.PreviousNewReputationValue,
				proofFromArgs(args.U[7], args.PreviousNewReputationSiblings))
			if err != nil {
				return err
			}
			if err := trie.VerifyProof(s.JRH, justificationKey(lo), reputation.JustificationLeaf(newestRoot, agreeNNodes),
				proofFromArgs(args.U[4], args.AgreeStateSiblings)); err != nil {
				return fmt.Errorf("newest reputation: %w", err)
			}
			newest, err := reputation.DecodeValue(args.PreviousNewReputationValue)
			if err != nil || newest.UID != agreeNNodes {
				return fmt.Errorf("newest reputation uid: %w", minererrors.ErrDInvalidPayload)
			}
		}
		if disagreeNNodes != agreeNNodes+1 {
			return fmt.Errorf("new key count %d -> %d: %w", agreeNNodes, disagreeNNodes, minererrors.ErrDChallengeRejected)
		}
		expected = reputation.NewValue(entry.Amount, agreeNNodes+1)
	}
	if !bytes.Equal(args.DisagreeStateReputationValue, expected.Encode()) {
		return fmt.Errorf("log entry %d applied as %x, want %s: %w", lo, args.DisagreeStateReputationValue, expected, minererrors.ErrDChallengeRejected)
	}

	s.won, opp.lost = true, true
	s.LastResponseTimestamp = m.tick()
	next := round + 1
	for uint64(len(m.rounds)) <= next {
		m.rounds = append(m.rounds, nil)
	}
	m.rounds[next] = append(m.rounds[next], &mockSubmission{
		Submission: Submission{
			ProposedNewRootHash:   s.ProposedNewRootHash,
			NNodes:                s.NNodes,
			LastResponseTimestamp: s.LastResponseTimestamp,
		},
		submitters: append([]common.Address(nil), s.submitters...),
		entryIndex: s.entryIndex,
		leaves:     make(map[uint64][]byte),
	})
	log.Info(log.LedgerMonitoring, "mock challenge upheld", "round", round, "index", index, "winner", c.miner)
	return nil
}

func justificationKey(i uint64) []byte {
	return common.Uint64ToBytes32(i)
}

func proofFromArgs(mask *big.Int, siblings []common.Hash) trie.Proof {
	p := trie.Proof{Siblings: siblings}
	p.BranchMask.SetFromBig(mask)
	return p
}
