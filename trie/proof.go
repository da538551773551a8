package trie

import (
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/holiman/uint256"
)

// Proof is an inclusion proof: BranchMask has bit 255-d set for every branch
// node at depth d on the key's path, and Siblings holds the other child's edge
// hash at each of those branches, root first.
type Proof struct {
	BranchMask uint256.Int
	Siblings   []common.Hash
}

// BranchMaskBytes is the canonical fixed-width big-endian form of the mask.
func (p Proof) BranchMaskBytes() [32]byte {
	return p.BranchMask.Bytes32()
}

// BranchMaskHex renders the mask as 0x followed by 64 hex digits.
func (p Proof) BranchMaskHex() string {
	b := p.BranchMask.Bytes32()
	return common.Bytes2Hex(b[:])
}

// Validate checks that the mask has one bit per sibling.
func (p Proof) Validate() error {
	if n := popCount(&p.BranchMask); n != len(p.Siblings) {
		return fmt.Errorf("mask has %d bits for %d siblings: %w", n, len(p.Siblings), minererrors.ErrTSiblingsMismatch)
	}
	return nil
}

func (p Proof) Copy() Proof {
	out := Proof{Siblings: append([]common.Hash(nil), p.Siblings...)}
	out.BranchMask.Set(&p.BranchMask)
	return out
}

type proofJSON struct {
	BranchMask string        `json:"branchMask"`
	Siblings   []common.Hash `json:"siblings"`
}

func (p Proof) MarshalJSON() ([]byte, error) {
	siblings := p.Siblings
	if siblings == nil {
		siblings = []common.Hash{}
	}
	return json.Marshal(proofJSON{BranchMask: p.BranchMaskHex(), Siblings: siblings})
}

func (p *Proof) UnmarshalJSON(data []byte) error {
	var raw proofJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mask := common.FromHex(raw.BranchMask)
	if len(mask) > 32 {
		return fmt.Errorf("branch mask of %d bytes", len(mask))
	}
	p.BranchMask.SetBytes(mask)
	p.Siblings = raw.Siblings
	if len(p.Siblings) == 0 {
		p.Siblings = nil
	}
	return nil
}

// ImpliedRoot recomputes the root hash a (key, value) pair and its proof
// commit to, walking from the deepest branch back to the root.
func ImpliedRoot(key, value []byte, proof Proof) (common.Hash, error) {
	if err := proof.Validate(); err != nil {
		return common.Hash{}, err
	}
	k := keyLabel(key)
	e := Edge{Node: common.Keccak256(value)}
	mask := new(uint256.Int).Set(&proof.BranchMask)
	numSiblings := len(proof.Siblings)
	for i := 0; !mask.IsZero(); i++ {
		bitSet := lowestBitSet(mask)
		mask.And(mask, new(uint256.Int).Not(new(uint256.Int).Lsh(one, bitSet)))
		k, e.Label = splitAt(k, 255-bitSet)
		var bit uint
		bit, e.Label = chopFirstBit(e.Label)
		var edgeHashes [2]common.Hash
		edgeHashes[bit] = edgeHash(e)
		edgeHashes[1-bit] = proof.Siblings[numSiblings-i-1]
		e.Node = hashPair(edgeHashes[0], edgeHashes[1])
	}
	e.Label = k
	return edgeHash(e), nil
}

// VerifyProof checks that (key, value) is committed to by root.
func VerifyProof(root common.Hash, key, value []byte, proof Proof) error {
	implied, err := ImpliedRoot(key, value, proof)
	if err != nil {
		return err
	}
	if implied != root {
		return fmt.Errorf("implied %s, want %s: %w", common.Str(implied), common.Str(root), minererrors.ErrTProofMismatch)
	}
	return nil
}
