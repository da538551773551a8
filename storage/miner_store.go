package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/repminer/log"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	reputationPrefix    = []byte("rep/")
	justificationPrefix = []byte("jr/")
)

// MinerStore is the durable local state of one miner: the reputation cache
// mirroring the reputation trie, and the justification records of the most
// recently replayed cycle.
type MinerStore struct {
	ps *PersistenceStore
}

// OpenMinerStore opens the store under dir. An empty dir gives an in-memory store.
func OpenMinerStore(dir string) (*MinerStore, error) {
	ps, err := NewPersistenceStore(dir)
	if err != nil {
		return nil, err
	}
	return &MinerStore{ps: ps}, nil
}

func NewMinerStore(ps *PersistenceStore) *MinerStore {
	return &MinerStore{ps: ps}
}

func (s *MinerStore) Close() error {
	return s.ps.Close()
}

func reputationKey(key []byte) []byte {
	return append(append([]byte{}, reputationPrefix...), key...)
}

// PutReputation writes one cache entry synchronously.
func (s *MinerStore) PutReputation(key, value []byte) error {
	if err := s.ps.Put(reputationKey(key), value); err != nil {
		return fmt.Errorf("PutReputation %x: %w", key, err)
	}
	return nil
}

// Reputations returns every cached (key, value) pair in key order.
func (s *MinerStore) Reputations() ([][2][]byte, error) {
	pairs, err := s.ps.GetWithPrefix(reputationPrefix)
	if err != nil {
		return nil, err
	}
	for i := range pairs {
		pairs[i][0] = pairs[i][0][len(reputationPrefix):]
	}
	return pairs, nil
}

// ClearReputations drops the whole cache.
func (s *MinerStore) ClearReputations() error {
	log.Debug(log.StorageMonitoring, "clearing reputation cache")
	return s.ps.DeletePrefix(reputationPrefix)
}

func justificationKey(index uint64) []byte {
	k := make([]byte, len(justificationPrefix)+8)
	copy(k, justificationPrefix)
	binary.BigEndian.PutUint64(k[len(justificationPrefix):], index)
	return k
}

// Justifications returns the encoded records in index order.
func (s *MinerStore) Justifications() ([][]byte, error) {
	pairs, err := s.ps.GetWithPrefix(justificationPrefix)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(pairs))
	for i, p := range pairs {
		idx := binary.BigEndian.Uint64(p[0][len(justificationPrefix):])
		if idx != uint64(i) {
			return nil, fmt.Errorf("justification records have a gap at index %d", i)
		}
		out = append(out, p[1])
	}
	return out, nil
}

// CycleBatch buffers the writes of one mining cycle. Nothing reaches the
// store until Commit, so an aborted cycle leaves the previous one intact.
type CycleBatch struct {
	b        *leveldb.Batch
	nRecords uint64
}

func NewCycleBatch() *CycleBatch {
	return &CycleBatch{b: new(leveldb.Batch)}
}

func (b *CycleBatch) PutReputation(key, value []byte) {
	b.b.Put(reputationKey(key), value)
}

// PutJustification buffers record index. Records must be put as 0, 1, 2, ...
func (b *CycleBatch) PutJustification(index uint64, record []byte) {
	b.b.Put(justificationKey(index), record)
	if index+1 > b.nRecords {
		b.nRecords = index + 1
	}
}

func (b *CycleBatch) Len() int {
	return b.b.Len()
}

// Commit writes b in one atomic batch. Justification records of an earlier
// cycle beyond the ones b carries are deleted in the same write.
func (s *MinerStore) Commit(b *CycleBatch) error {
	pairs, err := s.ps.GetWithPrefix(justificationPrefix)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if binary.BigEndian.Uint64(p[0][len(justificationPrefix):]) >= b.nRecords {
			b.b.Delete(p[0])
		}
	}
	if err := s.ps.Write(b.b); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	log.Debug(log.StorageMonitoring, "cycle committed", "writes", b.b.Len(), "records", b.nRecords)
	return nil
}
