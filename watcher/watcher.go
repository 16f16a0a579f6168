// Package watcher observes a local directory, an S3 bucket, or a GCS
// bucket for files that have never been ingested, and runs each one
// through the gateway's create+store+publish sequence so the pipeline
// picks it up exactly as if it had been uploaded over HTTP.
package watcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/gatewayapi"
)

// Object describes one file or blob a Source has observed.
type Object struct {
	// Key identifies the object within its source (a local path, or an
	// S3/GCS object key) — the identity a SeenSet tracks.
	Key string
	// Name is the filename handed to the artifact store and the registry
	// row, independent of any directory/prefix structure in Key.
	Name string
	// Fingerprint changes whenever the object at Key is replaced: a local
	// file's modification time, or an object store's ETag.
	Fingerprint string
}

// Source lists and reads whatever a backend is watching.
type Source interface {
	// List returns every object currently present, regardless of whether
	// it has already been ingested.
	List(ctx context.Context) ([]Object, error)
	// Read returns the raw bytes and a best-guess content type for key.
	Read(ctx context.Context, key string) ([]byte, string, error)
}

// Watcher ties a Source to the seen-set and the collaborators Ingest
// needs.
type Watcher struct {
	source    Source
	seen      *SeenSet
	documents gatewayapi.DocumentStore
	artifacts artifactstore.Store
	bus       *bus.Bus
	ownerID   *string
	log       *logrus.Entry
}

// New builds a Watcher. ownerID, if non-nil, is attached to every document
// this watcher ingests, so a reprocess or list request can be scoped the
// same way an HTTP upload would be.
func New(source Source, seen *SeenSet, documents gatewayapi.DocumentStore, artifacts artifactstore.Store, b *bus.Bus, ownerID *string, log *logrus.Entry) *Watcher {
	return &Watcher{source: source, seen: seen, documents: documents, artifacts: artifacts, bus: b, ownerID: ownerID, log: log}
}

// Scan lists the source once and ingests every object not already in the
// seen-set. A single object's read or ingest failure is logged and
// skipped, not fatal to the scan — the object is left out of the seen-set
// so the next scan retries it.
func (w *Watcher) Scan(ctx context.Context) error {
	objects, err := w.source.List(ctx)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if !w.seen.IsNew(obj.Key, obj.Fingerprint) {
			continue
		}

		data, contentType, err := w.source.Read(ctx, obj.Key)
		if err != nil {
			w.log.WithField("key", obj.Key).WithError(err).Error("watcher: failed to read object")
			continue
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		created, err := gatewayapi.Ingest(ctx, w.documents, w.artifacts, w.bus, gatewayapi.IngestRequest{
			Data:        data,
			Filename:    obj.Name,
			ContentType: contentType,
			OwnerID:     w.ownerID,
		})
		if err != nil {
			w.log.WithField("key", obj.Key).WithError(err).Error("watcher: failed to ingest object")
			continue
		}

		if err := w.seen.Mark(obj.Key, obj.Fingerprint); err != nil {
			w.log.WithField("key", obj.Key).WithError(err).Error("watcher: failed to persist seen-set")
		}
		w.log.WithFields(logrus.Fields{"key": obj.Key, "document_id": created.ID}).Info("watcher: ingested new object")
	}

	return nil
}

// Poll runs Scan on an interval until ctx is cancelled. It is the run loop
// for backends without push notification (S3, GCS).
func (w *Watcher) Poll(ctx context.Context, interval time.Duration) error {
	if err := w.Scan(ctx); err != nil {
		w.log.WithError(err).Error("watcher: initial scan failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Scan(ctx); err != nil {
				w.log.WithError(err).Error("watcher: scan failed")
			}
		}
	}
}
