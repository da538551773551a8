package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceStore_BasicOperations(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	key := []byte("test-key")
	value := []byte("test-value")
	require.NoError(t, ps.Put(key, value))

	got, found, err := ps.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value, got)

	_, found, err = ps.Get([]byte("non-existent"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, ps.Delete(key))
	_, found, err = ps.Get(key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPersistenceStore_Prefix(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, ps.Put([]byte("a/2"), []byte("two")))
	require.NoError(t, ps.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, ps.Put([]byte("b/1"), []byte("other")))

	pairs, err := ps.GetWithPrefix([]byte("a/"))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, []byte("a/1"), pairs[0][0])
	assert.Equal(t, []byte("two"), pairs[1][1])

	require.NoError(t, ps.DeletePrefix([]byte("a/")))
	pairs, err = ps.GetWithPrefix([]byte("a/"))
	require.NoError(t, err)
	assert.Empty(t, pairs)

	_, found, err := ps.Get([]byte("b/1"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPersistenceStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ps, err := NewPersistenceStore(dir)
	require.NoError(t, err)
	require.NoError(t, ps.Put([]byte("k"), []byte("v")))
	require.NoError(t, ps.Close())

	ps, err = NewPersistenceStore(dir)
	require.NoError(t, err)
	defer ps.Close()
	got, found, err := ps.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), got)
}
