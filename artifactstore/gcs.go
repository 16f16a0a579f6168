package artifactstore

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"

	"cloud.google.com/go/storage"

	"hccpipe.dev/clinical"
)

// GCSStore stores blobs in a single Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore wraps an already-configured GCS client.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

func (g *GCSStore) Kind() clinical.StorageKind { return clinical.StorageGCS }

func (g *GCSStore) Store(ctx context.Context, data []byte, filename, contentType string) (clinical.Storage, error) {
	key := NewKey(filename)
	obj := g.client.Bucket(g.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return clinical.Storage{}, err
	}
	if err := w.Close(); err != nil {
		return clinical.Storage{}, err
	}
	return clinical.Storage{Kind: clinical.StorageGCS, Path: key}, nil
}

func (g *GCSStore) Get(ctx context.Context, loc clinical.Storage) ([]byte, string, error) {
	obj := g.client.Bucket(g.bucket).Object(loc.Path)
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}

	ct := r.Attrs.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(loc.Path))
	}
	return data, ct, nil
}

func (g *GCSStore) Delete(ctx context.Context, loc clinical.Storage) (bool, error) {
	obj := g.client.Bucket(g.bucket).Object(loc.Path)
	if err := obj.Delete(ctx); err != nil {
		// S3/GCS delete failures are swallowed and reported as (false, nil),
		// never returned as errors (open question resolved in SPEC_FULL.md §9).
		return false, nil
	}
	return true, nil
}
