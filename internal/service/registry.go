// Package service contains the compression engine, the artifact
// registry, the lifecycle scheduler and the access gate
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"filecrush/compressd/internal/model"
	"filecrush/compressd/pkg/apperr"
)

// Registry is the single source of truth for FileRecord lifecycle
// state. All transitions are conditional single-statement updates, so a
// reader can never observe a half-written record.
type Registry struct {
	DB *gorm.DB

	// Now is swappable for tests
	Now func() time.Time
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{DB: db, Now: time.Now}
}

func (r *Registry) Create(ctx context.Context, rec *model.FileRecord) error {
	err := r.DB.WithContext(ctx).Create(rec).Error
	if err != nil {
		return apperr.Storage("failed to create file record", err)
	}

	return nil
}

// MarkProcessing moves uploaded -> processing
func (r *Registry) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, []model.Status{model.StatusUploaded}, map[string]any{
		"status": model.StatusProcessing,
	})
}

// Complete commits size, blob key presence and status in one statement.
// Only legal from processing.
func (r *Registry) Complete(ctx context.Context, id string, compressedSize int64) error {
	return r.transition(ctx, id, []model.Status{model.StatusProcessing}, map[string]any{
		"status":          model.StatusCompleted,
		"compressed_size": compressedSize,
	})
}

// Fail is legal from uploaded and processing. Failed is terminal.
func (r *Registry) Fail(ctx context.Context, id, reason string) error {
	return r.transition(ctx, id, []model.Status{model.StatusUploaded, model.StatusProcessing}, map[string]any{
		"status":     model.StatusFailed,
		"last_error": reason,
	})
}

func (r *Registry) transition(ctx context.Context, id string, from []model.Status, updates map[string]any) error {
	res := r.DB.WithContext(ctx).
		Model(model.FileRecord{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return apperr.Storage("failed to update file record", res.Error)
	}

	if res.RowsAffected == 0 {
		return apperr.Conflict("record missing or not in a legal state for this transition")
	}

	return nil
}

// Get returns a live record. Unknown ids and expired records are both
// not-found: a record past its expiry is dead on every read path, even
// before the sweep physically reaps it.
func (r *Registry) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	var rec model.FileRecord

	err := r.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&rec).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("file not found")
		}

		return nil, apperr.Storage("failed to load file record", err)
	}

	if rec.Expired(r.Now()) {
		return nil, apperr.NotFound("file not found")
	}

	return &rec, nil
}

// FindExpired returns completed records whose expiry has passed
func (r *Registry) FindExpired(ctx context.Context, now time.Time, limit int) ([]model.FileRecord, error) {
	var recs []model.FileRecord

	err := r.DB.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.StatusCompleted, now).
		Limit(limit).
		Find(&recs).
		Error
	if err != nil {
		return nil, apperr.Storage("failed to query expired records", err)
	}

	return recs, nil
}

// Remove deletes the metadata row. Removing an already removed record
// is a no-op so sweep retries stay idempotent.
func (r *Registry) Remove(ctx context.Context, id string) error {
	err := r.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(model.FileRecord{}).
		Error
	if err != nil {
		return apperr.Storage("failed to delete file record", err)
	}

	return nil
}

// HasLiveStorageName reports whether any record still claims the blob key
func (r *Registry) HasLiveStorageName(ctx context.Context, key string) (bool, error) {
	var count int64

	err := r.DB.WithContext(ctx).
		Model(model.FileRecord{}).
		Where("storage_name = ?", key).
		Count(&count).
		Error
	if err != nil {
		return false, apperr.Storage("failed to query storage key", err)
	}

	return count > 0, nil
}

// IncrementDownloads bumps the download counter. Callers treat this as
// best-effort; a failure must never block the download itself.
func (r *Registry) IncrementDownloads(ctx context.Context, id string) error {
	err := r.DB.WithContext(ctx).
		Model(model.FileRecord{}).
		Where("id = ?", id).
		Update("download_count", gorm.Expr("download_count + 1")).
		Error
	if err != nil {
		zap.L().Warn("Failed to increment download count", zap.String("id", id), zap.Error(err))
		return apperr.Storage("failed to increment download count", err)
	}

	return nil
}
