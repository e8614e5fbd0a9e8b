package persistence

import "time"

// BatchCheckpoint holds the translated lines of one finished batch.
// BatchStart and BatchEnd are unit offsets, end exclusive.
type BatchCheckpoint struct {
	JobID           string
	BatchStart      int
	BatchEnd        int
	TranslatedLines []string
	UpdatedAt       time.Time
}
