// Package store holds the submission store backends: in-memory (default),
// Redis and Postgres. All three return sentinel errors and hand out copies.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"compliancelab/internal/submission/models"
	"compliancelab/pkg/platform/sentinel"
	"compliancelab/pkg/requestcontext"
)

type memEntry struct {
	sub *models.Submission
	seq uint64
}

// InMemory is a process-local store. A single RWMutex serializes writers
// while letting reads proceed concurrently. Nothing survives a restart.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*memEntry
	traces  map[string]string
	seq     uint64
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[string]*memEntry),
		traces:  make(map[string]string),
	}
}

// Create assigns missing ids, stamps created_at = updated_at = request time
// and inserts a copy of sub. sub is updated in place with the assigned values.
func (s *InMemory) Create(ctx context.Context, sub *models.Submission) error {
	sub.PrepareForInsert(requestcontext.Now(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[sub.ID]; exists {
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrConflict)
	}
	if _, taken := s.traces[sub.TraceID]; taken {
		return fmt.Errorf("trace %s: %w", sub.TraceID, sentinel.ErrConflict)
	}
	s.seq++
	s.traces[sub.TraceID] = sub.ID
	s.records[sub.ID] = &memEntry{sub: sub.Clone(), seq: s.seq}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.sub.Clone(), nil
}

// List returns matches newest first, with insertion order breaking ties, and
// the number of matches before the limit was applied. Matches are copied
// under the read lock; sorting works on the copies.
func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Submission, int, error) {
	s.mu.RLock()
	matched := make([]memEntry, 0, len(s.records))
	for _, e := range s.records {
		if filter.Matches(e.sub) {
			matched = append(matched, memEntry{sub: e.sub.Clone(), seq: e.seq})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b memEntry) int {
		if c := b.sub.CreatedAt.Compare(a.sub.CreatedAt); c != 0 {
			return c
		}
		return compareSeqDesc(a.seq, b.seq)
	})

	total := len(matched)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]*models.Submission, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.sub)
	}
	return out, total, nil
}

// UpdateStatus sets the status and bumps updated_at. guard, when non-nil, is
// evaluated under the write lock and aborts the update by returning an error.
func (s *InMemory) UpdateStatus(ctx context.Context, id string, next models.Status, guard models.StatusGuard) (*models.Submission, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if guard != nil {
		if err := guard(e.sub.Clone(), next); err != nil {
			return nil, err
		}
	}
	e.sub.ApplyStatus(next, now)
	return e.sub.Clone(), nil
}

// Stats counts every stored submission at call time.
func (s *InMemory) Stats(_ context.Context) (*models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := models.NewStatistics()
	for _, e := range s.records {
		st.Add(e.sub)
	}
	return st, nil
}

func compareSeqDesc(a, b uint64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
