package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"hccpipe.dev/clinical"
)

// Create inserts doc, generating an id and timestamps if unset. Fails with
// ErrConflict if the (storage.kind, storage.path) pair is already registered.
func (r *Registry) Create(ctx context.Context, doc clinical.Document) (clinical.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = clinical.StatusPending
	}

	err := r.db.WithContext(ctx).Create(&doc).Error
	if isUniqueViolation(err) {
		return clinical.Document{}, ErrConflict
	}
	if err != nil {
		return clinical.Document{}, fmt.Errorf("registry: create: %w", err)
	}
	return doc, nil
}

// Get loads one document by id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (clinical.Document, error) {
	var doc clinical.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return clinical.Document{}, ErrNotFound
	}
	if err != nil {
		return clinical.Document{}, fmt.Errorf("registry: get: %w", err)
	}
	return doc, nil
}

// Filter narrows a List call. Zero values are treated as "no filter".
type Filter struct {
	Status  clinical.Status
	OwnerID string
}

// Pagination bounds a List call.
type Pagination struct {
	Skip  int
	Limit int
}

// List returns a page of documents ordered by created_at desc.
func (r *Registry) List(ctx context.Context, filter Filter, page Pagination) ([]clinical.Document, error) {
	q := r.db.WithContext(ctx).Model(&clinical.Document{}).Order("created_at desc")
	q = applyFilter(q, filter)

	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	if page.Skip > 0 {
		q = q.Offset(page.Skip)
	}

	var docs []clinical.Document
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return docs, nil
}

// CountByStatus counts documents in a status, optionally scoped to an owner.
func (r *Registry) CountByStatus(ctx context.Context, status clinical.Status, ownerID string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&clinical.Document{}).Where("status = ?", status)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("registry: count by status: %w", err)
	}
	return count, nil
}

func applyFilter(q *gorm.DB, filter Filter) *gorm.DB {
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	return q
}

// UpdateStatus transitions a document to newStatus. It sets
// processing_started_at on first leave of Pending, processing_completed_at
// (and is_processed) on entering Completed, and processing_completed_at on
// entering Failed. errMsg, when non-empty, overwrites the errors column.
func (r *Registry) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus clinical.Status, errMsg string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc clinical.Document
		if err := tx.First(&doc, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("registry: update status load: %w", err)
		}

		now := time.Now()
		updates := map[string]any{"status": newStatus}

		if newStatus != clinical.StatusPending && doc.ProcessingStartedAt == nil {
			updates["processing_started_at"] = now
		}
		switch newStatus {
		case clinical.StatusCompleted:
			updates["processing_completed_at"] = now
			updates["is_processed"] = true
		case clinical.StatusFailed:
			updates["processing_completed_at"] = now
		case clinical.StatusPending:
			updates["processing_started_at"] = nil
			updates["processing_completed_at"] = nil
			updates["total_conditions"] = nil
			updates["hcc_relevant_conditions"] = nil
			updates["compliant_conditions"] = nil
			updates["extraction_result_path"] = nil
			updates["analysis_result_path"] = nil
			updates["validation_result_path"] = nil
			updates["is_processed"] = false
		}
		if errMsg != "" {
			updates["errors"] = errMsg
		}

		if err := tx.Model(&clinical.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("registry: update status: %w", err)
		}
		return nil
	})
}

// ResultsPatch is the subset of fields UpdateResults may set. A nil pointer
// field means "leave unchanged"; Metadata, when non-nil, is shallow-merged
// with the existing value (last-writer-wins per key).
type ResultsPatch struct {
	TotalConditions       *int
	HCCRelevantConditions *int
	CompliantConditions   *int
	ExtractionResultPath  *string
	AnalysisResultPath    *string
	ValidationResultPath  *string
	PatientInfo           clinical.JSONMap
	Metadata              clinical.JSONMap
}

// UpdateResults applies patch to the document's counters, result paths,
// patient info, and metadata.
func (r *Registry) UpdateResults(ctx context.Context, id uuid.UUID, patch ResultsPatch) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc clinical.Document
		if err := tx.First(&doc, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("registry: update results load: %w", err)
		}

		updates := map[string]any{}
		if patch.TotalConditions != nil {
			updates["total_conditions"] = *patch.TotalConditions
		}
		if patch.HCCRelevantConditions != nil {
			updates["hcc_relevant_conditions"] = *patch.HCCRelevantConditions
		}
		if patch.CompliantConditions != nil {
			updates["compliant_conditions"] = *patch.CompliantConditions
		}
		if patch.ExtractionResultPath != nil {
			updates["extraction_result_path"] = *patch.ExtractionResultPath
		}
		if patch.AnalysisResultPath != nil {
			updates["analysis_result_path"] = *patch.AnalysisResultPath
		}
		if patch.ValidationResultPath != nil {
			updates["validation_result_path"] = *patch.ValidationResultPath
		}
		if patch.PatientInfo != nil {
			updates["patient_info"] = patch.PatientInfo
		}
		if patch.Metadata != nil {
			updates["metadata"] = clinical.MergeMetadata(doc.Metadata, patch.Metadata)
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&clinical.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("registry: update results: %w", err)
		}
		return nil
	})
}

// Delete removes the registry row. It does not touch the artifact store —
// that is the caller's concern.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&clinical.Document{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("registry: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "duplicate key", "unique constraint", "UNIQUE constraint")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(sub) <= len(s) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
