package analyzer

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/registry"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

type fakeRegistry struct {
	statusCalls  int
	lastStatus   clinical.Status
	resultsCalls int
	lastPatch    registry.ResultsPatch
}

func (f *fakeRegistry) UpdateStatus(_ context.Context, _ uuid.UUID, newStatus clinical.Status, _ string) error {
	f.statusCalls++
	f.lastStatus = newStatus
	return nil
}

func (f *fakeRegistry) UpdateResults(_ context.Context, _ uuid.UUID, patch registry.ResultsPatch) error {
	f.resultsCalls++
	f.lastPatch = patch
	return nil
}

func testBusWithChannel(t *testing.T) (*bus.Bus, *bus.MockAMQPChannel) {
	t.Helper()
	dialer, ch := bus.NewMockAMQPDialer()
	b, err := bus.NewWithDialer(bus.DefaultConfig("amqp://unused"), dialer, nil)
	require.NoError(t, err)
	return b, ch
}

func writeTempCSV(t *testing.T, rows string) string {
	t.Helper()
	path := t.TempDir() + "/hcc.csv"
	require.NoError(t, writeFile(path, rows))
	return path
}
