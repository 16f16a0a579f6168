package registry

import "errors"

// ErrNotFound is returned by Get, UpdateStatus, UpdateResults, and Delete
// when no document with the given id exists.
var ErrNotFound = errors.New("registry: document not found")

// ErrConflict is returned by Create when the (storage.kind, storage.path)
// pair already exists.
var ErrConflict = errors.New("registry: storage location already registered")
