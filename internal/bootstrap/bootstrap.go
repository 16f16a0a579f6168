// Package bootstrap wires the collaborators every stage binary and the
// gateway need from a common set of environment-driven settings: the
// artifact store backend, the message bus, and the document registry. It
// exists so cmd/gateway, cmd/extractor, cmd/analyzer, and cmd/validator
// don't each duplicate the same backend-selection switch.
package bootstrap

import (
	"context"
	"fmt"
	"sync/atomic"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/common"
	"hccpipe.dev/registry"
	"hccpipe.dev/worker"
)

// Settings is the subset of AllConfig every binary's bootstrap needs, kept
// flat so main.go can build it directly from Viper without importing the
// full config.AllConfig shape.
type Settings struct {
	ServiceName string
	LogLevel    common.LogLevel
	LogFormat   string

	ArtifactBackend string // "local", "s3", or "gcs"
	LocalDir        string
	S3Bucket        string
	GCSBucket       string

	BrokerURL   string
	DatabaseDSN string

	// BatchConcurrency bounds how many documents --mode=batch processes at
	// once; zero or negative falls back to DefaultBatchConcurrency.
	BatchConcurrency int
}

// DefaultBatchConcurrency is the worker pool size DrainBatch uses, and the
// one BatchWorkers falls back to when Settings.BatchConcurrency is unset.
const DefaultBatchConcurrency = 4

// BatchWorkers resolves the worker pool size a batch drain should use.
func (s Settings) BatchWorkers() int {
	if s.BatchConcurrency > 0 {
		return s.BatchConcurrency
	}
	return DefaultBatchConcurrency
}

// NewLogger builds the service's structured logger.
func NewLogger(s Settings) *logrus.Entry {
	logger := common.NewLogger(common.LoggerConfig{
		Level:   s.LogLevel,
		Format:  s.LogFormat,
		Service: s.ServiceName,
	})
	return logrus.NewEntry(logger).WithField("service", s.ServiceName)
}

// NewArtifactStore builds the configured backend, failing fast on an unknown
// or misconfigured one since every stage depends on it for every message.
func NewArtifactStore(ctx context.Context, s Settings) (artifactstore.Store, error) {
	switch s.ArtifactBackend {
	case "", "local":
		dir := s.LocalDir
		if dir == "" {
			dir = "./data"
		}
		return artifactstore.NewLocalStore(dir)
	case "s3":
		if s.S3Bucket == "" {
			return nil, fmt.Errorf("bootstrap: s3 backend requires a bucket name")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return artifactstore.NewS3Store(s3.NewFromConfig(cfg), s.S3Bucket), nil
	case "gcs":
		if s.GCSBucket == "" {
			return nil, fmt.Errorf("bootstrap: gcs backend requires a bucket name")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: new gcs client: %w", err)
		}
		return artifactstore.NewGCSStore(client, s.GCSBucket), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown artifact backend %q", s.ArtifactBackend)
	}
}

// NewBus dials the broker and declares the shared topic exchange.
func NewBus(s Settings, log *logrus.Entry) (*bus.Bus, error) {
	return bus.New(bus.DefaultConfig(s.BrokerURL), log)
}

// NewRegistry connects to the Document Registry's Postgres backend.
func NewRegistry(s Settings) *registry.Registry {
	return registry.New(s.DatabaseDSN, registry.DefaultConfig())
}

const batchPageSize = 100

// DrainBatch collects every document in status, builds each document's
// stage-input message body, and runs handle against it. It is how --mode
// batch reprocesses documents a stage worker would otherwise only see as
// bus deliveries: the message the bus would have carried is reconstructed
// from the registry row instead of replayed from the exchange.
func DrainBatch(
	ctx context.Context,
	reg *registry.Registry,
	status clinical.Status,
	buildBody func(clinical.Document) ([]byte, error),
	handle func(ctx context.Context, body []byte) error,
	log *logrus.Entry,
) error {
	return DrainBatchConcurrent(ctx, reg, status, DefaultBatchConcurrency, buildBody, handle, log)
}

// DrainBatchConcurrent is DrainBatch with an explicit worker pool size,
// processing the documents in parallel instead of one at a time —
// a backlog of thousands of Pending documents behind a stage that calls an
// LLM per document would otherwise take hours longer to drain than it
// needs to.
func DrainBatchConcurrent(
	ctx context.Context,
	reg *registry.Registry,
	status clinical.Status,
	concurrency int,
	buildBody func(clinical.Document) ([]byte, error),
	handle func(ctx context.Context, body []byte) error,
	log *logrus.Entry,
) error {
	pool := worker.New(concurrency)
	var processed int64

	// Page through the whole backlog before handling any of it: handle moves
	// a document out of status, which would shift the offsets of later pages.
	var docs []clinical.Document
	for skip := 0; ; {
		page, err := reg.List(ctx, registry.Filter{Status: status}, registry.Pagination{Skip: skip, Limit: batchPageSize})
		if err != nil {
			return fmt.Errorf("bootstrap: list %s documents: %w", status, err)
		}
		if len(page) == 0 {
			break
		}
		docs = append(docs, page...)
		skip += len(page)
	}

	worker.Run(ctx, pool, docs, func(ctx context.Context, doc clinical.Document) {
		body, err := buildBody(doc)
		if err != nil {
			log.WithField("document_id", doc.ID).WithError(err).Error("batch: failed to build message body")
			return
		}
		if err := handle(ctx, body); err != nil {
			log.WithField("document_id", doc.ID).WithError(err).Error("batch: handler failed")
			return
		}
		atomic.AddInt64(&processed, 1)
	})

	log.WithField("count", processed).Info("batch: drain complete")
	return nil
}
