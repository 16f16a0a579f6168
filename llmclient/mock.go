package llmclient

import (
	"context"
	"errors"
)

// MockClient is a test double that returns a queued response or error per
// call, in call order. Once exhausted it falls back to Default.
type MockClient struct {
	Responses []string
	Errors    []error
	Default   string

	calls int
	Seen  []string
}

// NewMockClient returns a MockClient that always responds with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{Default: response}
}

// NewFailingMockClient returns a MockClient whose Complete always fails.
func NewFailingMockClient(err error) *MockClient {
	if err == nil {
		err = errors.New("llmclient: mock failure")
	}
	return &MockClient{Errors: []error{err}}
}

func (m *MockClient) Complete(_ context.Context, prompt string) (string, error) {
	m.Seen = append(m.Seen, prompt)
	idx := m.calls
	m.calls++

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return "", m.Errors[idx]
	}
	if idx < len(m.Responses) {
		return m.Responses[idx], nil
	}
	if len(m.Errors) == 1 && len(m.Responses) == 0 {
		return "", m.Errors[0]
	}
	return m.Default, nil
}
