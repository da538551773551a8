package trie

import (
	"github.com/colorfulnotion/repminer/common"
	"github.com/holiman/uint256"
)

// edgeHash is keccak256(node ‖ uint256(label.length) ‖ label.data), the
// packed encoding the on-chain verifier hashes.
func edgeHash(e Edge) common.Hash {
	length := uint256.NewInt(uint64(e.Label.Length)).Bytes32()
	data := e.Label.Data.Bytes32()
	return common.Keccak256(e.Node.Bytes(), length[:], data[:])
}

// nodeHash hashes a branch node as keccak256(edgeHash(left) ‖ edgeHash(right)).
func nodeHash(n Node) common.Hash {
	return hashPair(edgeHash(n.Children[0]), edgeHash(n.Children[1]))
}

func hashPair(left, right common.Hash) common.Hash {
	return common.Keccak256(left.Bytes(), right.Bytes())
}

// keyLabel maps an arbitrary key to its full 256-bit path.
func keyLabel(key []byte) Label {
	h := common.Keccak256(key)
	var l Label
	l.Data.SetBytes32(h.Bytes())
	l.Length = 256
	return l
}

// EmptyRootHash is the root hash of a trie with no leaves. The on-chain tree
// reports zero until its first insert.
var EmptyRootHash = common.Hash{}
