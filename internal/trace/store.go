package trace

import (
	"context"
	"fmt"
	"sync"

	"compliancelab/pkg/platform/sentinel"
)

// Store persists trace records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByID(ctx context.Context, traceID string) (*Record, error)
}

// InMemoryStore keeps traces for the life of the process.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

// Save inserts rec. Trace ids are write-once.
func (s *InMemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.TraceID]; exists {
		return fmt.Errorf("trace %s: %w", rec.TraceID, sentinel.ErrConflict)
	}
	s.records[rec.TraceID] = cloneRecord(*rec)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, traceID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[traceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

// cloneRecord copies the verdict's slices so callers never share backing
// arrays with the store.
func cloneRecord(r Record) Record {
	v := r.Verdict
	v.AttestationsRequired = append(v.AttestationsRequired[:0:0], v.AttestationsRequired...)
	v.RegulatoryContext = append(v.RegulatoryContext[:0:0], v.RegulatoryContext...)
	v.Reasons = append(v.Reasons[:0:0], v.Reasons...)
	if v.BlockedBy != nil {
		v.BlockedBy = append(v.BlockedBy[:0:0], v.BlockedBy...)
	}
	r.Verdict = v
	return r
}
