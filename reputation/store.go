// Package reputation holds the reputation state of one mining cycle: the
// reputation trie, the uid index, and a write-through durable cache.
package reputation

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/colorfulnotion/repminer/trie"
	"github.com/holiman/uint256"
)

// ProofResult is the outcome of a proof lookup. When Found is false the key
// has never been written and Value/Proof are meaningless.
type ProofResult struct {
	Found bool
	Value Value
	Proof trie.Proof
}

// Bundle is a proof result flattened into the form recorded in
// justification records. Missing keys get the zero value and an empty proof.
type Bundle struct {
	Key    []byte     `json:"key"`
	Value  []byte     `json:"value"`
	NNodes uint64     `json:"nNodes"`
	Proof  trie.Proof `json:"proof"`
}

// EmptyBundle has the zero value and an empty proof.
func EmptyBundle() Bundle {
	return Bundle{Value: ZeroValue()}
}

// Store is the reputation state. It is owned by exactly one mining cycle.
type Store struct {
	tree   *trie.PatriciaTree
	cache  *storage.MinerStore
	staged *storage.CycleBatch
	values map[Key]Value
	byUID  []Key // byUID[uid-1]
}

// NewStore returns an empty store writing through to cache. cache may be nil
// for a purely in-memory store.
func NewStore(cache *storage.MinerStore) *Store {
	return &Store{
		tree:   trie.NewPatriciaTree("reputation"),
		cache:  cache,
		values: make(map[Key]Value),
	}
}

// LoadStore rebuilds a store from the durable cache. A missing cache gives an
// empty store; an unreadable or inconsistent one is discarded.
func LoadStore(cache *storage.MinerStore) (*Store, error) {
	s := NewStore(cache)
	if cache == nil {
		return s, nil
	}
	pairs, err := cache.Reputations()
	if err != nil {
		return nil, err
	}
	if err := s.restore(pairs); err != nil {
		log.Warn(log.StorageMonitoring, "reputation cache unusable, starting from empty state", "entries", len(pairs), "err", err)
		if err := cache.ClearReputations(); err != nil {
			return nil, err
		}
		return NewStore(cache), nil
	}
	log.Info(log.StorageMonitoring, "reputation cache loaded", "entries", s.Count(), "root", s.RootHash())
	return s, nil
}

func (s *Store) restore(pairs [][2][]byte) error {
	type entry struct {
		key   Key
		value Value
	}
	entries := make([]entry, 0, len(pairs))
	for _, p := range pairs {
		k, err := KeyFromBytes(p[0])
		if err != nil {
			return err
		}
		v, err := DecodeValue(p[1])
		if err != nil {
			return err
		}
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value.UID < entries[j].value.UID })
	for i, e := range entries {
		if e.value.UID != uint64(i+1) {
			return fmt.Errorf("uid %d at position %d", e.value.UID, i+1)
		}
		if err := s.tree.Insert(e.key.Bytes(), e.value.Encode()); err != nil {
			return err
		}
		s.values[e.key] = e.value
		s.byUID = append(s.byUID, e.key)
	}
	return nil
}

// Stage routes cache writes into b until Stage(nil) restores write-through.
func (s *Store) Stage(b *storage.CycleBatch) {
	s.staged = b
}

// Count is the number of distinct reputations, which is also the highest uid.
func (s *Store) Count() uint64 {
	return uint64(len(s.byUID))
}

func (s *Store) RootHash() common.Hash {
	return s.tree.RootHash()
}

// Get returns the value stored for key.
func (s *Store) Get(key Key) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Upsert applies amount to the reputation (colony, skill, user). It returns
// false without touching any state when either address is malformed. A new
// key is given uid Count()+1; an existing key keeps its uid and accumulates.
// The cache is written before the in-memory state, so a failed write leaves
// both unchanged.
func (s *Store) Upsert(colonyAddress string, skillID *uint256.Int, userAddress string, amount *big.Int, logIndex uint64) (bool, error) {
	key, err := ParseKey(colonyAddress, skillID, userAddress)
	if err != nil {
		log.Debug(log.MinerMonitoring, "upsert rejected", "logIndex", logIndex, "err", err)
		return false, nil
	}

	var value Value
	existing, exists := s.values[key]
	if exists {
		value = existing.Add(amount)
	} else {
		value = NewValue(amount, s.Count()+1)
	}

	encoded := value.Encode()
	switch {
	case s.staged != nil:
		s.staged.PutReputation(key.Bytes(), encoded)
	case s.cache != nil:
		if err := s.cache.PutReputation(key.Bytes(), encoded); err != nil {
			return false, fmt.Errorf("upsert log entry %d: %w", logIndex, err)
		}
	}
	if err := s.tree.Insert(key.Bytes(), encoded); err != nil {
		return false, fmt.Errorf("upsert log entry %d: %w", logIndex, err)
	}
	s.values[key] = value
	if !exists {
		s.byUID = append(s.byUID, key)
	}
	log.Trace(log.MinerMonitoring, "upsert", "logIndex", logIndex, "key", key, "value", value, "new", !exists)
	return true, nil
}

// GetProof looks up key and its inclusion proof. A key that was never written
// is reported as ProofResult{Found: false}, not as an error.
func (s *Store) GetProof(key Key) (ProofResult, error) {
	value, ok := s.values[key]
	if !ok {
		return ProofResult{}, nil
	}
	proof, err := s.tree.GetProof(key.Bytes())
	if errors.Is(err, minererrors.ErrTKeyNotFound) {
		return ProofResult{}, fmt.Errorf("key %s cached but absent from trie: %w", key, minererrors.ErrTBadNode)
	}
	if err != nil {
		return ProofResult{}, err
	}
	return ProofResult{Found: true, Value: value, Proof: proof}, nil
}

// Bundle is GetProof flattened for a justification record, with the current
// reputation count attached.
func (s *Store) Bundle(key Key) (Bundle, error) {
	res, err := s.GetProof(key)
	if err != nil {
		return Bundle{}, err
	}
	b := EmptyBundle()
	b.Key = key.Bytes()
	b.NNodes = s.Count()
	if res.Found {
		b.Value = res.Value.Encode()
		b.Proof = res.Proof
	}
	return b, nil
}

// Newest returns the bundle for the reputation with the highest uid, or an
// empty bundle when the store has no entries.
func (s *Store) Newest() (Bundle, error) {
	if len(s.byUID) == 0 {
		b := EmptyBundle()
		b.Key = make([]byte, KeyLength)
		return b, nil
	}
	return s.Bundle(s.byUID[len(s.byUID)-1])
}

// ByUID returns the key holding uid.
func (s *Store) ByUID(uid uint64) (Key, bool) {
	if uid == 0 || uid > s.Count() {
		return Key{}, false
	}
	return s.byUID[uid-1], true
}

// VerifyAgainst checks the rebuilt state against the ledger-confirmed root.
// A zero ledger root stands for the genesis (empty) state.
func (s *Store) VerifyAgainst(ledgerRoot common.Hash) error {
	if ledgerRoot.IsZero() && s.Count() == 0 {
		return nil
	}
	if s.RootHash() != ledgerRoot {
		return fmt.Errorf("local %s, ledger %s: %w", common.Str(s.RootHash()), common.Str(ledgerRoot), minererrors.ErrRCacheDiverged)
	}
	return nil
}
