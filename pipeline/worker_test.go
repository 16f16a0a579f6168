package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
)

// noopAcknowledger satisfies amqp.Acknowledger without a real channel, and
// records which method was called so tests can assert ack/drop behavior.
type noopAcknowledger struct {
	acked  bool
	nacked bool
}

func (n *noopAcknowledger) Ack(tag uint64, multiple bool) error {
	n.acked = true
	return nil
}
func (n *noopAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	n.nacked = true
	return nil
}
func (n *noopAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

type fakeStatusUpdater struct {
	lastID     uuid.UUID
	lastStatus clinical.Status
	lastErr    string
	calls      int
}

func (f *fakeStatusUpdater) UpdateStatus(_ context.Context, id uuid.UUID, newStatus clinical.Status, errMsg string) error {
	f.lastID, f.lastStatus, f.lastErr = id, newStatus, errMsg
	f.calls++
	return nil
}

type fakeHandler struct {
	msgType clinical.MessageType
	err     error
	panics  bool
}

func (h *fakeHandler) MessageType() clinical.MessageType { return h.msgType }
func (h *fakeHandler) Handle(_ context.Context, _ []byte) error {
	if h.panics {
		panic("boom")
	}
	return h.err
}

func newTestBus(t *testing.T) (*bus.Bus, *bus.MockAMQPChannel) {
	t.Helper()
	dialer, ch := bus.NewMockAMQPDialer()
	b, err := bus.NewWithDialer(bus.DefaultConfig("amqp://unused"), dialer, nil)
	require.NoError(t, err)
	return b, ch
}

func envelopeJSON(t *testing.T, msgType clinical.MessageType, docID string) []byte {
	t.Helper()
	env := clinical.Envelope{MessageID: "m1", Timestamp: time.Now().Unix(), MessageType: msgType, DocumentID: docID}
	body, err := jsonMarshal(env)
	require.NoError(t, err)
	return body
}

func TestWorker_DropsUnexpectedMessageType(t *testing.T) {
	b, ch := newTestBus(t)
	updater := &fakeStatusUpdater{}
	handler := &fakeHandler{msgType: clinical.MessageExtractionCompleted}
	w := NewWorker(b, updater, "q", "rk", handler, time.Second, nil)

	require.NoError(t, w.bus.DeclareQueue("q", "rk"))
	ack := &noopAcknowledger{}
	docID := uuid.New().String()
	delivery := testDelivery(envelopeJSON(t, clinical.MessageUploaded, docID), ack)

	w.process(context.Background(), delivery)

	assert.True(t, ack.acked)
	assert.Equal(t, 0, updater.calls)
	_ = ch
}

func TestWorker_DropsMalformedDocumentID(t *testing.T) {
	b, _ := newTestBus(t)
	updater := &fakeStatusUpdater{}
	handler := &fakeHandler{msgType: clinical.MessageUploaded}
	w := NewWorker(b, updater, "q", "rk", handler, time.Second, nil)

	ack := &noopAcknowledger{}
	delivery := testDelivery(envelopeJSON(t, clinical.MessageUploaded, "not-a-uuid"), ack)

	w.process(context.Background(), delivery)

	assert.True(t, ack.acked)
	assert.Equal(t, 0, updater.calls)
}

func TestWorker_HandlerErrorMarksFailedAndAcks(t *testing.T) {
	b, _ := newTestBus(t)
	updater := &fakeStatusUpdater{}
	handler := &fakeHandler{msgType: clinical.MessageUploaded, err: errors.New("boom")}
	w := NewWorker(b, updater, "q", "rk", handler, time.Second, nil)

	ack := &noopAcknowledger{}
	docID := uuid.New().String()
	delivery := testDelivery(envelopeJSON(t, clinical.MessageUploaded, docID), ack)

	w.process(context.Background(), delivery)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	require.Equal(t, 1, updater.calls)
	assert.Equal(t, clinical.StatusFailed, updater.lastStatus)
	assert.Equal(t, docID, updater.lastID.String())
	assert.Contains(t, updater.lastErr, "boom")
}

func TestWorker_HandlerPanicMarksFailedAndAcks(t *testing.T) {
	b, _ := newTestBus(t)
	updater := &fakeStatusUpdater{}
	handler := &fakeHandler{msgType: clinical.MessageUploaded, panics: true}
	w := NewWorker(b, updater, "q", "rk", handler, time.Second, nil)

	ack := &noopAcknowledger{}
	docID := uuid.New().String()
	delivery := testDelivery(envelopeJSON(t, clinical.MessageUploaded, docID), ack)

	w.process(context.Background(), delivery)

	assert.True(t, ack.acked)
	require.Equal(t, 1, updater.calls)
	assert.Equal(t, clinical.StatusFailed, updater.lastStatus)
	assert.Contains(t, updater.lastErr, "panic")
}

func TestWorker_HandlerSuccessAcksWithoutStatusUpdate(t *testing.T) {
	b, _ := newTestBus(t)
	updater := &fakeStatusUpdater{}
	handler := &fakeHandler{msgType: clinical.MessageUploaded}
	w := NewWorker(b, updater, "q", "rk", handler, time.Second, nil)

	ack := &noopAcknowledger{}
	docID := uuid.New().String()
	delivery := testDelivery(envelopeJSON(t, clinical.MessageUploaded, docID), ack)

	w.process(context.Background(), delivery)

	assert.True(t, ack.acked)
	assert.Equal(t, 0, updater.calls)
}
