package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/MimeLyc/subflow/internal/persistence"
)

// CheckpointBackend persists translated batches per job
type CheckpointBackend interface {
	SaveBatchCheckpoint(ctx context.Context, jobID string, batchStart int, batchEnd int, translatedLines []string) error
	LoadBatchCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
	ClearCheckpoints(ctx context.Context, jobID string) error
}

// persistentBatchCheckpointStore serves translator.CheckpointStore from memory
// and writes through to the backend
type persistentBatchCheckpointStore struct {
	backend CheckpointBackend
	jobID   string

	mu     sync.RWMutex
	cached map[string][]string
}

func newPersistentBatchCheckpointStore(ctx context.Context, backend CheckpointBackend, jobID string) (*persistentBatchCheckpointStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("checkpoint backend is nil")
	}
	if jobID == "" {
		return nil, fmt.Errorf("job id is empty")
	}

	checkpoints, err := backend.LoadBatchCheckpoints(ctx, jobID)
	if err != nil {
		return nil, err
	}

	cached := make(map[string][]string, len(checkpoints))
	for _, cp := range checkpoints {
		cached[batchKey(cp.BatchStart, cp.BatchEnd)] = append([]string(nil), cp.TranslatedLines...)
	}

	return &persistentBatchCheckpointStore{
		backend: backend,
		jobID:   jobID,
		cached:  cached,
	}, nil
}

func (s *persistentBatchCheckpointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cached)
}

func (s *persistentBatchCheckpointStore) Load(start, end int) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret, ok := s.cached[batchKey(start, end)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), ret...), true
}

func (s *persistentBatchCheckpointStore) Save(ctx context.Context, start, end int, translated []string) error {
	if s == nil {
		return nil
	}
	copyData := append([]string(nil), translated...)
	if err := s.backend.SaveBatchCheckpoint(ctx, s.jobID, start, end, copyData); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached[batchKey(start, end)] = copyData
	s.mu.Unlock()
	return nil
}

// clear drops every checkpoint of the job once its output is written
func (s *persistentBatchCheckpointStore) clear(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.cached = make(map[string][]string)
	s.mu.Unlock()
	return s.backend.ClearCheckpoints(ctx, s.jobID)
}

func batchKey(start, end int) string {
	return fmt.Sprintf("%d:%d", start, end)
}
