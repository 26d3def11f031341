package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/tinynotes/pkg/storage"
	"github.com/nicktill/tinynotes/pkg/storage/storagetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	return store
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTestStore(t)
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	id, err := store.Create(ctx, "durable")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, id))
	kept, err := store.Create(ctx, "kept")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	note, err := reopened.Get(ctx, kept)
	require.NoError(t, err)
	require.Equal(t, "kept", note.Content)

	// AUTOINCREMENT keeps the high-water mark across restarts.
	next, err := reopened.Create(ctx, "after restart")
	require.NoError(t, err)
	require.Greater(t, next, kept)
}

func TestStore_Maintain(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	_, err := store.Create(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, store.Maintain(context.Background()))
}

func TestStore_TableConstraintRejectsLongContent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	// Bypass Go-side validation to exercise the CHECK constraint.
	long := make([]byte, storage.MaxContentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := store.sqlDB.Exec(`INSERT INTO note (content) VALUES (?)`, string(long))
	require.Error(t, err)
	require.True(t, storage.IsValidation(mapError("insert note", err)))
}
