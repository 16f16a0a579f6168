package artifactstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/clinical"
)

func TestLocalStore_StoreGetRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := store.Store(ctx, []byte("chart contents"), "chart.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, clinical.StorageLocal, loc.Kind)
	assert.Equal(t, clinical.StorageLocal, store.Kind())

	data, contentType, err := store.Get(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, "chart contents", string(data))
	assert.Equal(t, "application/pdf", contentType)
}

func TestLocalStore_GetMissingReturnsNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), clinical.Storage{Kind: clinical.StorageLocal, Path: "missing/file.pdf"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_DeleteReportsWhetherAnythingWasRemoved(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := store.Store(ctx, []byte("x"), "note.txt", "text/plain")
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, loc)
	require.NoError(t, err)
	assert.True(t, deleted)

	deletedAgain, err := store.Delete(ctx, loc)
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestNewLocalStore_CreatesRootDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	_, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
