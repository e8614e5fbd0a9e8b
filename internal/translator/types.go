// Package translator runs the batches of one job through a primary engine
// with a single fallback attempt per batch.
package translator

import (
	"context"
	"fmt"

	"github.com/MimeLyc/subflow/internal/engine"
)

// Cache stores successful engine responses across jobs
type Cache interface {
	Get(key string) (string, bool, error)
	Put(key string, value string) error
}

// CheckpointStore keeps translated lines of finished batches for one job.
// start and end are unit offsets of the batch, end exclusive.
type CheckpointStore interface {
	Load(start, end int) ([]string, bool)
	Save(ctx context.Context, start, end int, translated []string) error
}

// Source tells where the lines of a batch came from
type Source string

const (
	SourceEngine     Source = "engine"
	SourceCache      Source = "cache"
	SourceCheckpoint Source = "checkpoint"
)

// Progress is reported after each finished batch
type Progress struct {
	Batch  int // 1-based count of finished batches
	Total  int
	Engine engine.Kind // zero unless Source is SourceEngine
	Source Source
}

// BatchResult holds the raw response lines for one batch
type BatchResult struct {
	Index  int
	Lines  []string
	Engine engine.Kind
	Source Source
}

// Outcome summarises TranslateAll
type Outcome struct {
	Batches     []BatchResult
	EngineCalls int
	Fallbacks   int
	CacheHits   int
	Resumed     int
}

// TranslationFailed is returned when both engines fail for one batch
type TranslationFailed struct {
	BatchIndex int
	Primary    error
	Fallback   error
}

func (e *TranslationFailed) Error() string {
	return fmt.Sprintf("batch %d failed: primary: %v; fallback: %v", e.BatchIndex, e.Primary, e.Fallback)
}

func (e *TranslationFailed) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}
