package trie

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// Label is a bit string of Length bits stored left-aligned in Data. Bits past
// Length are always zero.
type Label struct {
	Data   uint256.Int
	Length uint
}

var one = uint256.NewInt(1)

// splitAt cuts l after pos bits.
func splitAt(l Label, pos uint) (prefix Label, suffix Label) {
	if pos > l.Length {
		pos = l.Length
	}
	prefix.Length = pos
	if pos > 0 {
		mask := new(uint256.Int).Lsh(one, 256-pos)
		mask.Sub(mask, one)
		mask.Not(mask)
		prefix.Data.And(&l.Data, mask)
	}
	suffix.Length = l.Length - pos
	if pos < 256 {
		suffix.Data.Lsh(&l.Data, pos)
	}
	return prefix, suffix
}

// commonPrefix returns the number of leading bits a and b share.
func commonPrefix(a, b Label) uint {
	length := a.Length
	if b.Length < length {
		length = b.Length
	}
	diff := new(uint256.Int).Xor(&a.Data, &b.Data)
	lz := uint(256 - diff.BitLen())
	if lz < length {
		return lz
	}
	return length
}

func splitCommonPrefix(l, other Label) (prefix Label, suffix Label) {
	return splitAt(l, commonPrefix(l, other))
}

// chopFirstBit removes the leading bit, returning it as 0 or 1.
func chopFirstBit(l Label) (head uint, tail Label) {
	head = uint(l.Data[3] >> 63)
	tail.Length = l.Length - 1
	tail.Data.Lsh(&l.Data, 1)
	return head, tail
}

func removePrefix(l Label, n uint) Label {
	_, suffix := splitAt(l, n)
	return suffix
}

// lowestBitSet returns the index of the least significant set bit, or 256 if x is zero.
func lowestBitSet(x *uint256.Int) uint {
	for i := 0; i < 4; i++ {
		if x[i] != 0 {
			return uint(i*64 + bits.TrailingZeros64(x[i]))
		}
	}
	return 256
}

func popCount(x *uint256.Int) int {
	n := 0
	for i := 0; i < 4; i++ {
		n += bits.OnesCount64(x[i])
	}
	return n
}
