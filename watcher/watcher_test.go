package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/registry"
)

type fakeDocumentStore struct {
	docs map[uuid.UUID]clinical.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[uuid.UUID]clinical.Document)}
}

func (f *fakeDocumentStore) Create(_ context.Context, doc clinical.Document) (clinical.Document, error) {
	doc.ID = uuid.New()
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeDocumentStore) Get(_ context.Context, id uuid.UUID) (clinical.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return clinical.Document{}, registry.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocumentStore) List(_ context.Context, _ registry.Filter, _ registry.Pagination) ([]clinical.Document, error) {
	out := make([]clinical.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocumentStore) UpdateStatus(_ context.Context, id uuid.UUID, status clinical.Status, _ string) error {
	doc := f.docs[id]
	doc.Status = status
	f.docs[id] = doc
	return nil
}

func (f *fakeDocumentStore) UpdateResults(_ context.Context, _ uuid.UUID, _ registry.ResultsPatch) error {
	return nil
}

func (f *fakeDocumentStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.docs, id)
	return nil
}

func testBus(t *testing.T) *bus.Bus {
	t.Helper()
	dialer, _ := bus.NewMockAMQPDialer()
	b, err := bus.NewWithDialer(bus.DefaultConfig("amqp://unused"), dialer, nil)
	require.NoError(t, err)
	return b
}

func TestWatcher_Scan_IngestsOnceAndSkipsOnRescan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644))

	source, err := NewLocalSource(dir, nil)
	require.NoError(t, err)

	seen, err := LoadSeenSet(filepath.Join(t.TempDir(), "seen.json"))
	require.NoError(t, err)

	documents := newFakeDocumentStore()
	artifacts := artifactstore.NewMockStore()
	b := testBus(t)

	w := New(source, seen, documents, artifacts, b, nil, discardLogger())

	require.NoError(t, w.Scan(context.Background()))
	assert.Len(t, documents.docs, 1)

	require.NoError(t, w.Scan(context.Background()))
	assert.Len(t, documents.docs, 1, "second scan must not re-ingest an already-seen file")
}

func TestWatcher_Scan_OwnerIDAttached(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644))

	source, err := NewLocalSource(dir, nil)
	require.NoError(t, err)

	seen, err := LoadSeenSet(filepath.Join(t.TempDir(), "seen.json"))
	require.NoError(t, err)

	owner := "watcher-service"
	w := New(source, seen, newFakeDocumentStore(), artifactstore.NewMockStore(), testBus(t), &owner, discardLogger())

	require.NoError(t, w.Scan(context.Background()))

	fake := w.documents.(*fakeDocumentStore)
	for _, doc := range fake.docs {
		require.NotNil(t, doc.OwnerID)
		assert.Equal(t, owner, *doc.OwnerID)
	}
}

func TestWatcher_Scan_IgnoresNonMatchingPattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("hello"), 0o644))

	source, err := NewLocalSource(dir, []string{"*.txt"})
	require.NoError(t, err)

	seen, err := LoadSeenSet(filepath.Join(t.TempDir(), "seen.json"))
	require.NoError(t, err)

	documents := newFakeDocumentStore()
	w := New(source, seen, documents, artifactstore.NewMockStore(), testBus(t), nil, discardLogger())

	require.NoError(t, w.Scan(context.Background()))
	assert.Empty(t, documents.docs)
}
