// Package pipeline is the shared stage-worker skeleton: one dequeue/ack loop
// reused by the extractor, analyzer, and validator, adapted from the
// project's generic worker-pool shape so the queue is the message bus rather
// than an in-memory structure and the job processor is stage-specific.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
)

// StatusUpdater is the slice of the Document Registry the skeleton needs to
// record a Failed transition. *registry.Registry satisfies this.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus clinical.Status, errMsg string) error
}

// DefaultHandleTimeout bounds a single stage invocation, including every
// blocking call it makes (artifact store, registry, LLM, publish).
const DefaultHandleTimeout = 2 * time.Minute

// Handler is the stage-specific half of the skeleton. MessageType names the
// message_type this handler expects; deliveries of any other type are
// dropped before Handle is ever called. Handle receives the raw message body
// and is responsible for steps 3 through 7 of the shared skeleton:
// UpdateStatus(in-progress), loading inputs, running stage logic, storing
// the artifact, updating results, and publishing the next event (or the
// terminal UpdateStatus for the last stage). Returning an error — or
// panicking — causes the worker to record the document Failed and ack the
// message; there is no requeue path.
type Handler interface {
	MessageType() clinical.MessageType
	Handle(ctx context.Context, body []byte) error
}

// Worker runs one Handler against one queue bound to one routing key on the
// shared topic exchange.
type Worker struct {
	bus        *bus.Bus
	reg        StatusUpdater
	handler    Handler
	queueName  string
	routingKey string
	timeout    time.Duration
	log        *logrus.Entry
}

// NewWorker wires a Handler to its queue. timeout of zero uses DefaultHandleTimeout.
func NewWorker(b *bus.Bus, reg StatusUpdater, queueName, routingKey string, handler Handler, timeout time.Duration, log *logrus.Entry) *Worker {
	if timeout <= 0 {
		timeout = DefaultHandleTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		bus:        b,
		reg:        reg,
		handler:    handler,
		queueName:  queueName,
		routingKey: routingKey,
		timeout:    timeout,
		log:        log.WithField("queue", queueName),
	}
}

// Run declares the worker's queue and consumes until ctx is cancelled. It
// returns nil on a clean shutdown triggered by ctx.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.bus.DeclareQueue(w.queueName, w.routingKey); err != nil {
		return fmt.Errorf("pipeline: declare queue %s: %w", w.queueName, err)
	}

	deliveries, err := w.bus.Consume(w.queueName, w.queueName)
	if err != nil {
		return fmt.Errorf("pipeline: consume %s: %w", w.queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.process(ctx, delivery)
		}
	}
}

// process implements the shared skeleton's steps 1, 2, and 8: begin a scope
// that acks regardless of outcome, parse and validate the envelope, recover
// from any panic in the handler, and persist Failed on any handler error.
func (w *Worker) process(ctx context.Context, delivery amqp.Delivery) {
	entry := w.log

	var envelope clinical.Envelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		entry.WithError(err).Warn("dropping message: invalid envelope JSON")
		_ = delivery.Ack(false)
		return
	}
	entry = entry.WithField("message_id", envelope.MessageID).WithField("message_type", envelope.MessageType)

	if envelope.MessageType != w.handler.MessageType() {
		entry.Warn("dropping message: unexpected message_type")
		_ = delivery.Ack(false)
		return
	}

	docID, err := envelope.ParseDocumentID()
	if err != nil {
		entry.WithError(err).Warn("dropping message: malformed document_id")
		_ = delivery.Ack(false)
		return
	}
	entry = entry.WithField("document_id", docID.String())

	handleCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	w.runHandler(handleCtx, docID, delivery, entry)
}

func (w *Worker) runHandler(ctx context.Context, docID uuid.UUID, delivery amqp.Delivery, entry *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			w.markFailed(ctx, docID, fmt.Errorf("panic in stage handler: %v", r), entry)
			_ = delivery.Ack(false)
		}
	}()

	if err := w.handler.Handle(ctx, delivery.Body); err != nil {
		w.markFailed(ctx, docID, err, entry)
		_ = delivery.Ack(false)
		return
	}
	_ = delivery.Ack(false)
}

func (w *Worker) markFailed(ctx context.Context, docID uuid.UUID, cause error, entry *logrus.Entry) {
	entry.WithError(cause).Error("stage handler failed, marking document Failed")
	if err := w.reg.UpdateStatus(ctx, docID, clinical.StatusFailed, cause.Error()); err != nil {
		entry.WithError(err).Error("failed to persist Failed status")
	}
}
