package clinical

import (
	"time"

	"github.com/google/uuid"
)

// StorageKind names a supported artifact-store backend.
type StorageKind string

const (
	StorageLocal StorageKind = "local"
	StorageS3    StorageKind = "s3"
	StorageGCS   StorageKind = "gcs"
)

// Storage locates a blob within an Artifact Store backend. It is immutable
// once a Document is created.
type Storage struct {
	Kind StorageKind `json:"kind"`
	Path string      `json:"path"`
}

// Document is the durable, registry-owned record of one clinical note moving
// through the pipeline. Identity, file and storage fields and the owner are
// set once at creation. Status, the processing timestamps, Errors and
// IsProcessed change through UpdateStatus; the three *ResultPath pointers,
// the three counters, PatientInfo and Metadata are written by the stage
// workers via UpdateResults.
type Document struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	StorageKind StorageKind `json:"storage_kind" gorm:"column:storage_kind;index:idx_documents_storage,unique"`
	StoragePath string      `json:"storage_path" gorm:"column:storage_path;index:idx_documents_storage,unique"`

	Status Status `json:"status" gorm:"index"`

	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`

	TotalConditions       *int `json:"total_conditions,omitempty"`
	HCCRelevantConditions *int `json:"hcc_relevant_conditions,omitempty"`
	CompliantConditions   *int `json:"compliant_conditions,omitempty"`

	ExtractionResultPath *string `json:"extraction_result_path,omitempty"`
	AnalysisResultPath   *string `json:"analysis_result_path,omitempty"`
	ValidationResultPath *string `json:"validation_result_path,omitempty"`

	Errors      *string        `json:"errors,omitempty"`
	PatientInfo JSONMap        `json:"patient_info,omitempty" gorm:"serializer:json"`
	Metadata    JSONMap        `json:"metadata,omitempty" gorm:"serializer:json"`
	OwnerID     *string        `json:"owner_id,omitempty" gorm:"index"`
	IsProcessed bool           `json:"is_processed"`
}

// GetStorage reassembles the Storage value from the flattened GORM columns.
func (d *Document) GetStorage() Storage {
	return Storage{Kind: d.StorageKind, Path: d.StoragePath}
}

// SetStorage flattens a Storage value into the GORM columns.
func (d *Document) SetStorage(s Storage) {
	d.StorageKind = s.Kind
	d.StoragePath = s.Path
}

// JSONMap is an open key/value bag persisted as a JSON column.
type JSONMap map[string]any

// MergeMetadata performs the shallow, last-writer-wins merge UpdateResults
// requires: keys in patch overwrite keys in base, everything else in base
// survives.
func MergeMetadata(base, patch JSONMap) JSONMap {
	if base == nil {
		base = JSONMap{}
	}
	merged := make(JSONMap, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
