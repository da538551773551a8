package storage

import (
	"bytes"
	"fmt"
	"os"

	"github.com/colorfulnotion/repminer/log"
	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// PersistenceStore wraps LevelDB for raw key-value persistence.
// This is the foundational persistence layer - no trie logic here.
// Thread-safe: LevelDB handles its own synchronization.
type PersistenceStore struct {
	db *leveldb.DB
}

// NewPersistenceStore opens or creates a LevelDB database at the given path.
// If path is empty, uses in-memory storage. A corrupt database is first
// recovered; if that fails too it is wiped and reopened empty.
func NewPersistenceStore(path string) (*PersistenceStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		memStorage := leveldbstorage.NewMemStorage()
		db, err = leveldb.Open(memStorage, nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
		if leveldberrors.IsCorrupted(err) {
			log.Warn(log.StorageMonitoring, "database corrupted, attempting recovery", "path", path, "err", err)
			db, err = leveldb.RecoverFile(path, nil)
		}
		if leveldberrors.IsCorrupted(err) {
			log.Warn(log.StorageMonitoring, "recovery failed, starting from empty state", "path", path, "err", err)
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("failed to remove corrupt database at %s: %w", path, rmErr)
			}
			db, err = leveldb.OpenFile(path, nil)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	return &PersistenceStore{db: db}, nil
}

// NewMemoryPersistenceStore creates an in-memory PersistenceStore for testing.
func NewMemoryPersistenceStore() (*PersistenceStore, error) {
	return NewPersistenceStore("")
}

// Get retrieves a value by key. Returns (nil, false, nil) if not found.
func (ps *PersistenceStore) Get(key []byte) ([]byte, bool, error) {
	data, err := ps.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Get %x: %w", key, err)
	}
	return data, true, nil
}

func (ps *PersistenceStore) Put(key []byte, value []byte) error {
	return ps.db.Put(key, value, nil)
}

func (ps *PersistenceStore) Delete(key []byte) error {
	return ps.db.Delete(key, nil)
}

// GetWithPrefix returns all key-value pairs with the given prefix.
// Returns pairs sorted by key order.
func (ps *PersistenceStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	iter := ps.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var results [][2][]byte
	for iter.Next() {
		// Copy key and value to avoid iterator reuse issues
		keyCopy := bytes.Clone(iter.Key())
		valueCopy := bytes.Clone(iter.Value())
		results = append(results, [2][]byte{keyCopy, valueCopy})
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("GetWithPrefix %x: %w", prefix, err)
	}

	return results, nil
}

// DeletePrefix removes every key under prefix in one batch.
func (ps *PersistenceStore) DeletePrefix(prefix []byte) error {
	iter := ps.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(bytes.Clone(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("DeletePrefix %x: %w", prefix, err)
	}
	return ps.db.Write(batch, nil)
}

// Write applies batch atomically.
func (ps *PersistenceStore) Write(batch *leveldb.Batch) error {
	if err := ps.db.Write(batch, nil); err != nil {
		return fmt.Errorf("Write batch of %d: %w", batch.Len(), err)
	}
	return nil
}

func (ps *PersistenceStore) Close() error {
	return ps.db.Close()
}
