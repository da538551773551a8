package common

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

func Keccak256(data ...[]byte) Hash {
	hash := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hash.Write(d)
	}
	h := hash.Sum(nil)
	return BytesToHash(h)
}

// Uint64ToBytes32 encodes val as a 32-byte big-endian word.
func Uint64ToBytes32(val uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], val)
	return out
}

