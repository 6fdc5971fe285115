package model

// Stats holds the global processing counters served by /api/stats.
// A single row keyed by ID 1, updated best-effort after each completion.
type Stats struct {
	ID             uint  `gorm:"primaryKey" json:"-"`
	ProcessedFiles int64 `json:"processedFiles"`
	FailedFiles    int64 `json:"failedFiles"`
	BytesIn        int64 `json:"bytesIn"`
	BytesOut       int64 `json:"bytesOut"`
}
