// Package registry is the durable record of every document and its current
// processing state: the single source of truth for status, with artifacts
// and bus messages treated as derived state. Backed by PostgreSQL via GORM,
// the same persistence stack the teacher stack uses for its own durable
// store, with the same connection-pool tuning and panic-on-init-failure
// posture for unrecoverable startup errors.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hccpipe.dev/clinical"
)

// Updater is the subset of Registry every stage worker depends on. Defined
// here so stage packages can accept it instead of the concrete type, letting
// unit tests substitute an in-memory fake instead of a real Postgres.
type Updater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus clinical.Status, errMsg string) error
	UpdateResults(ctx context.Context, id uuid.UUID, patch ResultsPatch) error
}

// Registry is the GORM-backed Document Registry. Every method is a single
// transactional statement; there are no cross-row transactions.
type Registry struct {
	db *gorm.DB
}

// Config tunes the underlying connection pool.
type Config struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig mirrors the pool settings used across the stack's other
// Postgres-backed components.
func DefaultConfig() Config {
	return Config{MaxIdleConns: 10, MaxOpenConns: 100, ConnMaxLifetime: time.Hour}
}

// New connects to Postgres at dsn, runs AutoMigrate for the Document model,
// and applies the pool configuration. Connection or migration failure is
// treated as fatal for the process — there is no degraded mode for a
// component every stage worker and the gateway depend on.
func New(dsn string, cfg Config) *Registry {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		panic("registry: failed to connect to postgres: " + err.Error())
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic("registry: failed to obtain *sql.DB: " + err.Error())
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&clinical.Document{}); err != nil {
		panic("registry: migration failed: " + err.Error())
	}

	return &Registry{db: db}
}

// NewWithDB wraps an already-opened *gorm.DB, used by tests that bring their
// own testcontainers-backed connection.
func NewWithDB(db *gorm.DB) *Registry {
	return &Registry{db: db}
}
