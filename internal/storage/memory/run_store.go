package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// RunStore keeps run history in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs []records.RunRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// RecordRun appends a run. Runs without an ID are rejected.
func (s *RunStore) RecordRun(_ context.Context, run records.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Runs returns a copy of the recorded runs, oldest first.
func (s *RunStore) Runs() []records.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]records.RunRecord, len(s.runs))
	copy(out, s.runs)
	return out
}
