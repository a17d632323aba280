// Package memory keeps run records in process memory.
package memory

import (
	"context"
	"sync"

	"eggjnd/pkg/domain"
)

var _ domain.RunStore = (*Store)(nil)

// Store is an in-memory domain.RunStore. Records are copied on the way in
// and out so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.RunRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]domain.RunRecord)}
}

func (s *Store) Save(_ context.Context, rec domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.RunRecord{}, domain.ErrNotFound{Entity: "run", ID: id}
	}
	return rec.Clone(), nil
}

func (s *Store) List(_ context.Context, runID string) ([]domain.RunRecord, error) {
	s.mu.RLock()
	out := make([]domain.RunRecord, 0, len(s.records))
	for _, rec := range s.records {
		if runID == "" || rec.RunID == runID {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()
	domain.SortRunRecords(out)
	return out, nil
}

func (s *Store) Close() error { return nil }
