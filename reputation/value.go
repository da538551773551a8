package reputation

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/holiman/uint256"
)

// ValueLength is score (32) + uid (32).
const ValueLength = 64

// Value is a reputation entry. Score is a two's complement int256 that wraps
// on overflow; UID is assigned once when the key is first created.
type Value struct {
	Score uint256.Int
	UID   uint64
}

// NewValue builds a value from a signed score.
func NewValue(score *big.Int, uid uint64) Value {
	var v Value
	v.Score.SetFromBig(score)
	v.UID = uid
	return v
}

// Encode returns score ‖ uid as two 32-byte big-endian words.
func (v Value) Encode() []byte {
	out := make([]byte, ValueLength)
	score := v.Score.Bytes32()
	copy(out[:32], score[:])
	copy(out[32:], common.Uint64ToBytes32(v.UID))
	return out
}

// DecodeValue parses a 64-byte encoded value.
func DecodeValue(b []byte) (Value, error) {
	var v Value
	if len(b) != ValueLength {
		return v, fmt.Errorf("value of %d bytes: %w", len(b), minererrors.ErrRBadValueLength)
	}
	v.Score.SetBytes32(b[:32])
	uid := new(uint256.Int).SetBytes32(b[32:])
	if !uid.IsUint64() {
		return v, fmt.Errorf("uid %s exceeds 64 bits: %w", uid.Hex(), minererrors.ErrRBadValueLength)
	}
	v.UID = uid.Uint64()
	return v, nil
}

// ScoreBig returns the score as a signed big.Int.
func (v Value) ScoreBig() *big.Int {
	if v.Score.Sign() >= 0 {
		return v.Score.ToBig()
	}
	neg := new(uint256.Int).Neg(&v.Score)
	return new(big.Int).Neg(neg.ToBig())
}

// Add returns v with amount added to its score, keeping the uid.
func (v Value) Add(amount *big.Int) Value {
	var delta uint256.Int
	delta.SetFromBig(amount)
	out := Value{UID: v.UID}
	out.Score.Add(&v.Score, &delta)
	return out
}

func (v Value) String() string {
	return fmt.Sprintf("score=%s uid=%d", v.ScoreBig(), v.UID)
}

// ZeroValue is the encoding used for keys that do not exist yet.
func ZeroValue() []byte {
	return make([]byte, ValueLength)
}

// JustificationLeaf encodes a justification-trie leaf: reputation root ‖ count.
func JustificationLeaf(root common.Hash, count uint64) []byte {
	out := make([]byte, 64)
	copy(out[:32], root.Bytes())
	copy(out[32:], common.Uint64ToBytes32(count))
	return out
}

// DecodeJustificationLeaf is the inverse of JustificationLeaf.
func DecodeJustificationLeaf(b []byte) (common.Hash, uint64, error) {
	if len(b) != 64 {
		return common.Hash{}, 0, fmt.Errorf("justification leaf of %d bytes: %w", len(b), minererrors.ErrRBadValueLength)
	}
	count := new(uint256.Int).SetBytes32(b[32:])
	return common.BytesToHash(b[:32]), count.Uint64(), nil
}
