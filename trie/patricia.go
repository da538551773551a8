// Package trie implements the PATRICIA accumulator shared by the reputation
// and justification trees. Keys and values are hashed with keccak256; edges
// carry compressed bit labels and branch nodes have exactly two children. The
// hashing and proof layout match the on-chain verifier bit-for-bit.
package trie

import (
	"fmt"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/holiman/uint256"
)

type Edge struct {
	Node  common.Hash
	Label Label
}

type Node struct {
	Children [2]Edge
}

// PatriciaTree is an in-memory PATRICIA trie. It is not safe for concurrent
// mutation; each mining cycle owns its own instances.
type PatriciaTree struct {
	name  string
	nodes map[common.Hash]Node
	root  Edge
	size  int
}

// NewPatriciaTree returns an empty tree. name only tags log lines.
func NewPatriciaTree(name string) *PatriciaTree {
	return &PatriciaTree{
		name:  name,
		nodes: make(map[common.Hash]Node),
	}
}

func (t *PatriciaTree) isEmpty() bool {
	return t.root.Node.IsZero() && t.root.Label.Length == 0
}

// Size is the number of inserts that created a new leaf.
func (t *PatriciaTree) Size() int {
	return t.size
}

// NodeCount is the number of branch nodes currently stored.
func (t *PatriciaTree) NodeCount() int {
	return len(t.nodes)
}

// RootHash returns the edge hash of the root edge, or EmptyRootHash.
func (t *PatriciaTree) RootHash() common.Hash {
	if t.isEmpty() {
		return EmptyRootHash
	}
	return edgeHash(t.root)
}

// Insert adds or overwrites the leaf for key.
func (t *PatriciaTree) Insert(key, value []byte) error {
	k := keyLabel(key)
	valueHash := common.Keccak256(value)
	if t.isEmpty() {
		t.root = Edge{Node: valueHash, Label: k}
		t.size = 1
		log.Trace(log.TrieMonitoring, "insert into empty tree", "tree", t.name, "key", common.Bytes2Hex(key))
		return nil
	}
	e, created, err := t.insertAtEdge(t.root, k, valueHash)
	if err != nil {
		return fmt.Errorf("%s insert %x: %w", t.name, key, err)
	}
	t.root = e
	if created {
		t.size++
	}
	log.Trace(log.TrieMonitoring, "insert", "tree", t.name, "key", common.Bytes2Hex(key), "root", t.RootHash())
	return nil
}

func (t *PatriciaTree) insertAtNode(nodeHash common.Hash, key Label, value common.Hash) (common.Hash, bool, error) {
	if key.Length <= 1 {
		return common.Hash{}, false, fmt.Errorf("label of length %d at node %s: %w", key.Length, common.Str(nodeHash), minererrors.ErrTBadNode)
	}
	n, ok := t.nodes[nodeHash]
	if !ok {
		return common.Hash{}, false, fmt.Errorf("node %s: %w", common.Str(nodeHash), minererrors.ErrTBadNode)
	}
	head, tail := chopFirstBit(key)
	child, created, err := t.insertAtEdge(n.Children[head], tail, value)
	if err != nil {
		return common.Hash{}, false, err
	}
	n.Children[head] = child
	return t.replaceNode(nodeHash, n), created, nil
}

func (t *PatriciaTree) insertAtEdge(e Edge, key Label, value common.Hash) (Edge, bool, error) {
	if key.Length < e.Label.Length {
		return Edge{}, false, fmt.Errorf("key shorter than edge label: %w", minererrors.ErrTBadNode)
	}
	prefix, suffix := splitCommonPrefix(key, e.Label)
	var newNodeHash common.Hash
	created := false
	switch {
	case suffix.Length == 0:
		// Full match with the key, update operation
		newNodeHash = value
	case prefix.Length >= e.Label.Length:
		// Partial match, just follow the path
		h, c, err := t.insertAtNode(e.Node, suffix, value)
		if err != nil {
			return Edge{}, false, err
		}
		newNodeHash, created = h, c
	default:
		// Mismatch, so let us create a new branch node.
		head, tail := chopFirstBit(suffix)
		var branch Node
		branch.Children[head] = Edge{Node: value, Label: tail}
		branch.Children[1-head] = Edge{Node: e.Node, Label: removePrefix(e.Label, prefix.Length+1)}
		newNodeHash = t.insertNode(branch)
		created = true
	}
	return Edge{Node: newNodeHash, Label: prefix}, created, nil
}

func (t *PatriciaTree) insertNode(n Node) common.Hash {
	h := nodeHash(n)
	t.nodes[h] = n
	return h
}

func (t *PatriciaTree) replaceNode(oldHash common.Hash, n Node) common.Hash {
	delete(t.nodes, oldHash)
	return t.insertNode(n)
}

// GetProof returns the branch mask and root-first sibling edge hashes for
// key. Absent keys yield minererrors.ErrTKeyNotFound; a dangling node
// reference yields minererrors.ErrTBadNode.
func (t *PatriciaTree) GetProof(key []byte) (Proof, error) {
	if t.isEmpty() {
		return Proof{}, minererrors.ErrTKeyNotFound
	}
	k := keyLabel(key)
	e := t.root
	var proof Proof
	var length uint
	for {
		prefix, suffix := splitCommonPrefix(k, e.Label)
		if prefix.Length != e.Label.Length {
			return Proof{}, minererrors.ErrTKeyNotFound
		}
		if suffix.Length == 0 {
			// Found it
			break
		}
		length += prefix.Length
		bit := new(uint256.Int).Lsh(one, 255-length)
		proof.BranchMask.Or(&proof.BranchMask, bit)
		length++
		head, tail := chopFirstBit(suffix)
		n, ok := t.nodes[e.Node]
		if !ok {
			return Proof{}, fmt.Errorf("%s proof at depth %d: %w", t.name, length, minererrors.ErrTBadNode)
		}
		proof.Siblings = append(proof.Siblings, edgeHash(n.Children[1-head]))
		e = n.Children[head]
		k = tail
	}
	return proof, nil
}
