package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/artifactstore"
)

func TestLocalSource_MatchesPatternsOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	source, err := NewLocalSource(dir, []string{"*.txt"})
	require.NoError(t, err)

	objects, err := source.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "a.txt", objects[0].Name)
}

func TestRunLocal_IngestsFileWrittenAfterStart(t *testing.T) {
	dir := t.TempDir()
	source, err := NewLocalSource(dir, nil)
	require.NoError(t, err)

	seen, err := LoadSeenSet(filepath.Join(t.TempDir(), "seen.json"))
	require.NoError(t, err)

	documents := newFakeDocumentStore()
	w := New(source, seen, documents, artifactstore.NewMockStore(), testBus(t), nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunLocal(ctx, w, dir, time.Hour) }()

	// Give RunLocal time to register the fsnotify watch before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.txt"), []byte("hello"), 0o644))

	require.Eventually(t, func() bool {
		return len(documents.docs) == 1
	}, 2*time.Second, 20*time.Millisecond, "expected the written file to be ingested")

	cancel()
	require.NoError(t, <-done)
}
