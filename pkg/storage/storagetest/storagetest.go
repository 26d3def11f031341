// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tinynotes/pkg/storage"
)

// Factory returns a fresh, empty store. Run closes it when each subtest ends.
type Factory func(t *testing.T) storage.Store

// Run exercises a backend against the storage.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, store storage.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateAssignsDistinctIDs", testCreateAssignsDistinctIDs},
		{"CreateRejectsEmpty", testCreateRejectsEmpty},
		{"ContentLengthBound", testContentLengthBound},
		{"GetMissing", testGetMissing},
		{"Update", testUpdate},
		{"UpdateMissingDoesNotCreate", testUpdateMissingDoesNotCreate},
		{"UpdateRejectsEmpty", testUpdateRejectsEmpty},
		{"Delete", testDelete},
		{"DeleteMissing", testDeleteMissing},
		{"IDsNotReused", testIDsNotReused},
		{"PreservesBytes", testPreservesBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			t.Cleanup(func() {
				_ = store.Close()
			})
			tt.fn(t, store)
		})
	}
}

func testCreateAndGet(t *testing.T, store storage.Store) {
	ctx := context.Background()

	id, err := store.Create(ctx, "hello")
	require.NoError(t, err)
	assert.Positive(t, id)

	note, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.Note{ID: id, Content: "hello"}, note)
}

func testCreateAssignsDistinctIDs(t *testing.T, store storage.Store) {
	ctx := context.Background()

	first, err := store.Create(ctx, "same")
	require.NoError(t, err)
	second, err := store.Create(ctx, "same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "duplicate content must still get a new id")
	assert.Greater(t, second, first)
}

func testCreateRejectsEmpty(t *testing.T, store storage.Store) {
	_, err := store.Create(context.Background(), "")
	require.Error(t, err)
	assert.True(t, storage.IsValidation(err), "expected validation error, got %v", err)
}

func testContentLengthBound(t *testing.T, store storage.Store) {
	ctx := context.Background()

	exact := strings.Repeat("a", storage.MaxContentLength)
	id, err := store.Create(ctx, exact)
	require.NoError(t, err)

	note, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, exact, note.Content)

	_, err = store.Create(ctx, exact+"a")
	assert.True(t, storage.IsValidation(err), "expected validation error, got %v", err)

	// The bound counts characters, not bytes.
	wide := strings.Repeat("é", storage.MaxContentLength)
	_, err = store.Create(ctx, wide)
	require.NoError(t, err)
}

func testGetMissing(t *testing.T, store storage.Store) {
	_, err := store.Get(context.Background(), 999999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdate(t *testing.T, store storage.Store) {
	ctx := context.Background()

	id, err := store.Create(ctx, "a")
	require.NoError(t, err)

	updated, err := store.Update(ctx, id, "b")
	require.NoError(t, err)
	assert.Equal(t, storage.Note{ID: id, Content: "b"}, updated)

	note, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", note.Content)
}

func testUpdateMissingDoesNotCreate(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.Update(ctx, 424242, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Get(ctx, 424242)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdateRejectsEmpty(t *testing.T, store storage.Store) {
	ctx := context.Background()

	id, err := store.Create(ctx, "keep")
	require.NoError(t, err)

	_, err = store.Update(ctx, id, "")
	assert.True(t, storage.IsValidation(err), "expected validation error, got %v", err)

	note, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "keep", note.Content)
}

func testDelete(t *testing.T, store storage.Store) {
	ctx := context.Background()

	id, err := store.Create(ctx, "bye")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteMissing(t *testing.T, store storage.Store) {
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := store.Delete(ctx, 999999)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "attempt %d: got %v", i+1, err)
	}
}

func testIDsNotReused(t *testing.T, store storage.Store) {
	ctx := context.Background()

	first, err := store.Create(ctx, "one")
	require.NoError(t, err)
	second, err := store.Create(ctx, "two")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, second))

	third, err := store.Create(ctx, "three")
	require.NoError(t, err)
	assert.NotEqual(t, second, third)
	assert.Greater(t, third, second)
	assert.Greater(t, third, first)
}

func testPreservesBytes(t *testing.T, store storage.Store) {
	ctx := context.Background()

	content := "  tabs\tnewlines\n\"quotes\" ünïcödé 🚀  "
	id, err := store.Create(ctx, content)
	require.NoError(t, err)

	note, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, note.Content)
}
