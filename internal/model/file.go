// Package model defines database models
package model

import (
	"math"
	"time"
)

// MediaType decides which compression strategy the engine applies.
// It's picked once at ingestion and never re-derived afterwards.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaPDF   MediaType = "pdf"
)

func (m MediaType) Valid() bool {
	switch m {
	case MediaImage, MediaVideo, MediaAudio, MediaPDF:
		return true
	}
	return false
}

// Status is the lifecycle state of a record. Allowed transitions:
// uploaded -> processing -> completed | failed. Completed records are
// removed by the scheduler or a manual delete; failed is terminal.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FileRecord is the single persistent entity of the pipeline. One row
// per processed artifact, one blob per row keyed by StorageName.
type FileRecord struct {
	ID string `gorm:"primaryKey" json:"id"`

	// OriginalName is user supplied and untrusted. Only ever used as the
	// download filename, never as a storage key.
	OriginalName string `json:"name"`

	// StorageName is the server generated blob key. Unique per live record.
	StorageName string `gorm:"uniqueIndex" json:"-"`

	MediaType MediaType `gorm:"index" json:"media_type"`

	OriginalSize int64 `json:"original_size"`

	// CompressedSize is only set once processing succeeded
	CompressedSize int64 `json:"compressed_size"`

	Status Status `gorm:"index" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// ExpiresAt is always CreatedAt + TTL. Past this instant the record
	// is dead on every read path, whether or not the sweep reaped it yet.
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`

	DownloadCount int64 `json:"download_count"`

	// OwnerRef is nil for anonymous uploads
	OwnerRef *string `gorm:"index" json:"-"`

	// LastError is only set when Status is failed
	LastError *string `json:"last_error,omitempty"`
}

// Expired reports whether the record is logically dead at the given instant.
func (f *FileRecord) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// SavedPercent returns the rounded size reduction in percent. Zero when
// the original was empty or the record never completed. Negative values
// are possible and reported as-is: a pass that grew the file is not hidden.
func (f *FileRecord) SavedPercent() int {
	if f.OriginalSize <= 0 || f.Status != StatusCompleted {
		return 0
	}

	return int(math.Round(float64(f.OriginalSize-f.CompressedSize) / float64(f.OriginalSize) * 100))
}

// Summary is the upload/fetch response shape
type Summary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	MediaType      MediaType `json:"media_type"`
	Status         Status    `json:"status"`
	OriginalSize   int64     `json:"original_size"`
	CompressedSize int64     `json:"compressed_size"`
	SavedPercent   int       `json:"saved_percent"`
	DownloadRef    string    `json:"download_ref"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (f *FileRecord) Summarize() Summary {
	return Summary{
		ID:             f.ID,
		Name:           f.OriginalName,
		MediaType:      f.MediaType,
		Status:         f.Status,
		OriginalSize:   f.OriginalSize,
		CompressedSize: f.CompressedSize,
		SavedPercent:   f.SavedPercent(),
		DownloadRef:    "/api/files/" + f.ID + "/download",
		ExpiresAt:      f.ExpiresAt,
	}
}
