package artifactstore

import (
	"context"
	"errors"
	"mime"
	"os"
	"path/filepath"

	"hccpipe.dev/clinical"
)

// LocalStore stores blobs under a root directory on the local filesystem.
// It is the backend used in development and in tests that don't need a
// mocked store.
type LocalStore struct {
	root string
}

// NewLocalStore builds a LocalStore rooted at dir, creating it if absent.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: dir}, nil
}

func (l *LocalStore) Kind() clinical.StorageKind { return clinical.StorageLocal }

func (l *LocalStore) Store(_ context.Context, data []byte, filename, contentType string) (clinical.Storage, error) {
	key := NewKey(filename)
	full := filepath.Join(l.root, key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return clinical.Storage{}, err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return clinical.Storage{}, err
	}
	return clinical.Storage{Kind: clinical.StorageLocal, Path: key}, nil
}

func (l *LocalStore) Get(_ context.Context, loc clinical.Storage) ([]byte, string, error) {
	full := filepath.Join(l.root, loc.Path)
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	ct := mime.TypeByExtension(filepath.Ext(loc.Path))
	return data, ct, nil
}

func (l *LocalStore) Delete(_ context.Context, loc clinical.Storage) (bool, error) {
	full := filepath.Join(l.root, loc.Path)
	err := os.Remove(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, nil
	}
	return true, nil
}
