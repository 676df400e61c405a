package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseBatch(t *testing.T, db Database) {
	t.Helper()

	require.NoError(t, db.Put([]byte("stale"), []byte("x")))

	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("stale"))
	require.Equal(t, 3, batch.Len())

	// Nothing is visible before Write.
	_, err := db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, batch.Write())

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	ok, err := db.Has([]byte("stale"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDBBatchAppliesAtomically(t *testing.T) {
	exerciseBatch(t, NewMemDB())
}

func TestLevelDBBatchPersists(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseBatch(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}

func TestBoltDBBatchPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := NewBoltDB(path, nil)
	require.NoError(t, err)
	exerciseBatch(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewBoltDB(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}
