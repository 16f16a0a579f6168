package gatewayapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/artifactstore"
)

func TestIngest_StoreFailureReturnsSentinel(t *testing.T) {
	artifacts := artifactstore.NewMockStore()
	artifacts.StoreErr = assert.AnError

	_, err := Ingest(context.Background(), newFakeDocumentStore(), artifacts, nil, IngestRequest{
		Data: []byte("hello"), Filename: "note.txt", ContentType: "text/plain",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailed)
}

func TestIngest_PublishFailureRollsBackRowAndBlob(t *testing.T) {
	artifacts := artifactstore.NewMockStore()
	store := newFakeDocumentStore()
	b, ch := testBus(t)
	ch.PublishErr = assert.AnError

	_, err := Ingest(context.Background(), store, artifacts, b, IngestRequest{
		Data: []byte("hello"), Filename: "note.txt", ContentType: "text/plain",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Empty(t, store.docs)
}

func TestIngest_Success(t *testing.T) {
	artifacts := artifactstore.NewMockStore()
	store := newFakeDocumentStore()
	b, ch := testBus(t)

	owner := "watcher"
	doc, err := Ingest(context.Background(), store, artifacts, b, IngestRequest{
		Data: []byte("hello"), Filename: "note.txt", ContentType: "text/plain", OwnerID: &owner, Priority: 5,
	})
	require.NoError(t, err)
	require.NotNil(t, doc.OwnerID)
	assert.Equal(t, owner, *doc.OwnerID)
	require.Len(t, ch.PublishedKeys, 1)
}

func TestIngest_StoreFailureIsNotPublishFailure(t *testing.T) {
	artifacts := artifactstore.NewMockStore()
	artifacts.StoreErr = assert.AnError

	_, err := Ingest(context.Background(), newFakeDocumentStore(), artifacts, nil, IngestRequest{
		Data: []byte("hello"), Filename: "note.txt", ContentType: "text/plain",
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPublishFailed))
}
