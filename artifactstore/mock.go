package artifactstore

import (
	"context"

	"hccpipe.dev/clinical"
)

// MockStore is an in-memory Store used in unit tests that need a real
// Store/Get round trip without touching the filesystem or a cloud backend.
type MockStore struct {
	objects map[string]mockObject

	StoreErr  error
	GetErr    error
	DeleteErr error
}

type mockObject struct {
	data        []byte
	contentType string
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{objects: make(map[string]mockObject)}
}

func (m *MockStore) Kind() clinical.StorageKind { return clinical.StorageLocal }

func (m *MockStore) Store(_ context.Context, data []byte, filename, contentType string) (clinical.Storage, error) {
	if m.StoreErr != nil {
		return clinical.Storage{}, m.StoreErr
	}
	key := NewKey(filename)
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = mockObject{data: cp, contentType: contentType}
	return clinical.Storage{Kind: clinical.StorageLocal, Path: key}, nil
}

func (m *MockStore) Get(_ context.Context, loc clinical.Storage) ([]byte, string, error) {
	if m.GetErr != nil {
		return nil, "", m.GetErr
	}
	obj, ok := m.objects[loc.Path]
	if !ok {
		return nil, "", ErrNotFound
	}
	return obj.data, obj.contentType, nil
}

func (m *MockStore) Delete(_ context.Context, loc clinical.Storage) (bool, error) {
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	if _, ok := m.objects[loc.Path]; !ok {
		return false, nil
	}
	delete(m.objects, loc.Path)
	return true, nil
}
