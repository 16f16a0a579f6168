// Package artifactstore provides content-addressed-by-path blob storage for
// the original uploaded document and every stage's JSON result, behind one
// interface with pluggable local filesystem, AWS S3, and Google Cloud
// Storage backends.
package artifactstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"hccpipe.dev/clinical"
)

// Store is the contract every backend satisfies. A key is always
// "<uuid>/<filename>"; Store mints the uuid prefix, callers never choose it.
type Store interface {
	// Store writes data under a fresh uuid prefix and returns where it landed.
	Store(ctx context.Context, data []byte, filename, contentType string) (clinical.Storage, error)
	// Get returns the bytes at loc and the content type the backend has on
	// record for them (advisory — backends that don't preserve content type
	// infer one from the filename extension).
	Get(ctx context.Context, loc clinical.Storage) ([]byte, string, error)
	// Delete removes the object at loc. A missing object is not an error: it
	// returns (false, nil).
	Delete(ctx context.Context, loc clinical.Storage) (bool, error)
	// Kind identifies which backend this is, for building clinical.Storage values.
	Kind() clinical.StorageKind
}

// ErrNotFound is returned by Get when the backend has no object at loc.
var ErrNotFound = fmt.Errorf("artifactstore: not found")

// NewKey mints a fresh "<uuid>/<filename>" key.
func NewKey(filename string) string {
	return fmt.Sprintf("%s/%s", uuid.New().String(), filename)
}

// StoreJSON serializes value with stable two-space-indented UTF-8 JSON and
// stores it under filenameHint with content type application/json — the
// shared helper every stage worker calls to persist its artifact.
func StoreJSON(ctx context.Context, s Store, value any, filenameHint string) (clinical.Storage, error) {
	body, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return clinical.Storage{}, fmt.Errorf("artifactstore: marshal %s: %w", filenameHint, err)
	}
	return s.Store(ctx, body, filenameHint, "application/json")
}

// GetJSON loads the artifact at loc and unmarshals it into dest.
func GetJSON(ctx context.Context, s Store, loc clinical.Storage, dest any) error {
	body, _, err := s.Get(ctx, loc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("artifactstore: unmarshal %s: %w", loc.Path, err)
	}
	return nil
}

// bytesReader is a tiny convenience used by backends that need an io.Reader.
func bytesReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
