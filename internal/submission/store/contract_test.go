package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"compliancelab/internal/decision"
	"compliancelab/internal/submission/models"
	"compliancelab/pkg/platform/sentinel"
	"compliancelab/pkg/requestcontext"
)

type submissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Submission, int, error)
	UpdateStatus(ctx context.Context, id string, next models.Status, guard models.StatusGuard) (*models.Submission, error)
	Stats(ctx context.Context) (*models.Statistics, error)
}

var baseTime = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

// storeContract is the behaviour every backend shares. Backend suites embed
// it and assign store in SetupTest.
type storeContract struct {
	suite.Suite
	store submissionStore
}

func at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), baseTime.Add(offset))
}

func newSubmission(tenant string, ds decision.DecisionStatus) *models.Submission {
	return &models.Submission{
		CSFType:        models.CSFPractitioner,
		Tenant:         tenant,
		Priority:       models.DerivePriority(ds),
		Title:          "Practitioner CSF for OH",
		DecisionStatus: ds,
		RiskLevel:      decision.RiskLow,
		Payload:        []byte(`{"state":"OH"}`),
	}
}

func (s *storeContract) create(offset time.Duration, tenant string, ds decision.DecisionStatus) *models.Submission {
	sub := newSubmission(tenant, ds)
	s.Require().NoError(s.store.Create(at(offset), sub))
	return sub
}

func (s *storeContract) TestCreateAndFind() {
	s.Run("assigns ids, status and timestamps", func() {
		sub := s.create(0, "acme", decision.DecisionOKToSubmit)
		s.NotEmpty(sub.ID)
		s.NotEmpty(sub.TraceID)
		s.Equal(models.StatusSubmitted, sub.Status)
		s.True(sub.CreatedAt.Equal(baseTime))
		s.True(sub.UpdatedAt.Equal(baseTime))

		found, err := s.store.FindByID(context.Background(), sub.ID)
		s.Require().NoError(err)
		s.Equal(sub.ID, found.ID)
		s.Equal(sub.TraceID, found.TraceID)
		s.Equal("acme", found.Tenant)
		s.Equal(models.PriorityLow, found.Priority)
		s.JSONEq(`{"state":"OH"}`, string(found.Payload))
	})

	s.Run("keeps caller supplied ids", func() {
		sub := newSubmission("acme", decision.DecisionOKToSubmit)
		sub.ID = "sub-fixed"
		sub.TraceID = "trace-fixed"
		s.Require().NoError(s.store.Create(at(0), sub))

		found, err := s.store.FindByID(context.Background(), "sub-fixed")
		s.Require().NoError(err)
		s.Equal("trace-fixed", found.TraceID)
	})

	s.Run("rejects a duplicate id", func() {
		sub := newSubmission("acme", decision.DecisionOKToSubmit)
		sub.ID = "sub-dup"
		s.Require().NoError(s.store.Create(at(0), sub))

		dup := newSubmission("other", decision.DecisionBlocked)
		dup.ID = "sub-dup"
		err := s.store.Create(at(time.Minute), dup)
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		found, err := s.store.FindByID(context.Background(), "sub-dup")
		s.Require().NoError(err)
		s.Equal("acme", found.Tenant)
	})

	s.Run("rejects a duplicate trace id", func() {
		sub := newSubmission("acme", decision.DecisionOKToSubmit)
		sub.TraceID = "trace-dup"
		s.Require().NoError(s.store.Create(at(0), sub))

		dup := newSubmission("acme", decision.DecisionOKToSubmit)
		dup.TraceID = "trace-dup"
		err := s.store.Create(at(time.Minute), dup)
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		_, err = s.store.FindByID(context.Background(), dup.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("a rejected duplicate id keeps its trace id free", func() {
		sub := newSubmission("acme", decision.DecisionOKToSubmit)
		sub.ID = "sub-taken"
		s.Require().NoError(s.store.Create(at(0), sub))

		dup := newSubmission("acme", decision.DecisionOKToSubmit)
		dup.ID = "sub-taken"
		dup.TraceID = "trace-free"
		s.Require().ErrorIs(s.store.Create(at(time.Minute), dup), sentinel.ErrConflict)

		next := newSubmission("acme", decision.DecisionOKToSubmit)
		next.TraceID = "trace-free"
		s.Require().NoError(s.store.Create(at(time.Minute), next))
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.FindByID(context.Background(), "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned records are copies", func() {
		sub := s.create(0, "acme", decision.DecisionOKToSubmit)
		found, err := s.store.FindByID(context.Background(), sub.ID)
		s.Require().NoError(err)
		found.Status = models.StatusApproved

		again, err := s.store.FindByID(context.Background(), sub.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, again.Status)
	})
}

func (s *storeContract) TestList() {
	oldest := s.create(0, "acme", decision.DecisionOKToSubmit)
	middle := s.create(time.Minute, "beta", decision.DecisionNeedsReview)
	newest := s.create(2*time.Minute, "acme", decision.DecisionBlocked)

	s.Run("newest first with total", func() {
		items, total, err := s.store.List(context.Background(), models.ListFilter{})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(items, 3)
		s.Equal([]string{newest.ID, middle.ID, oldest.ID}, ids(items))
	})

	s.Run("limit truncates but total counts every match", func() {
		items, total, err := s.store.List(context.Background(), models.ListFilter{Limit: 2})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Equal([]string{newest.ID, middle.ID}, ids(items))
	})

	s.Run("filters by tenant", func() {
		items, total, err := s.store.List(context.Background(), models.ListFilter{Tenant: "acme"})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Equal([]string{newest.ID, oldest.ID}, ids(items))
	})

	s.Run("filters by status", func() {
		_, err := s.store.UpdateStatus(at(time.Hour), middle.ID, models.StatusInReview, nil)
		s.Require().NoError(err)

		items, total, err := s.store.List(context.Background(), models.ListFilter{
			Statuses: []models.Status{models.StatusInReview, models.StatusApproved},
		})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal([]string{middle.ID}, ids(items))
	})

	s.Run("no match is empty, not nil", func() {
		items, total, err := s.store.List(context.Background(), models.ListFilter{Tenant: "nobody"})
		s.Require().NoError(err)
		s.Zero(total)
		s.NotNil(items)
		s.Empty(items)
	})
}

func (s *storeContract) TestUpdateStatus() {
	sub := s.create(0, "acme", decision.DecisionOKToSubmit)

	s.Run("sets status and bumps updated_at", func() {
		updated, err := s.store.UpdateStatus(at(time.Hour), sub.ID, models.StatusInReview, nil)
		s.Require().NoError(err)
		s.Equal(models.StatusInReview, updated.Status)
		s.True(updated.UpdatedAt.Equal(baseTime.Add(time.Hour)))
		s.True(updated.CreatedAt.Equal(baseTime))

		found, err := s.store.FindByID(context.Background(), sub.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInReview, found.Status)
	})

	s.Run("updated_at never precedes created_at", func() {
		updated, err := s.store.UpdateStatus(at(-time.Hour), sub.ID, models.StatusInReview, nil)
		s.Require().NoError(err)
		s.False(updated.UpdatedAt.Before(updated.CreatedAt))
	})

	s.Run("guard rejection leaves the record untouched", func() {
		errNope := errors.New("nope")
		guard := func(current *models.Submission, next models.Status) error {
			s.Equal(models.StatusInReview, current.Status)
			s.Equal(models.StatusApproved, next)
			return errNope
		}
		_, err := s.store.UpdateStatus(at(2*time.Hour), sub.ID, models.StatusApproved, guard)
		s.Require().ErrorIs(err, errNope)

		found, err := s.store.FindByID(context.Background(), sub.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInReview, found.Status)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.UpdateStatus(at(0), "missing", models.StatusApproved, nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContract) TestConcurrentTransitionsApplyOnce() {
	sub := s.create(0, "acme", decision.DecisionOKToSubmit)
	guard := func(current *models.Submission, next models.Status) error {
		if current.Status != models.StatusSubmitted {
			return errors.New("already moved")
		}
		return nil
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.UpdateStatus(at(time.Minute), sub.ID, models.StatusInReview, guard); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, successes)
}

func (s *storeContract) TestReadsDuringStatusUpdates() {
	subs := make([]*models.Submission, 0, 20)
	for i := range 20 {
		subs = append(subs, s.create(time.Duration(i)*time.Second, "acme", decision.DecisionOKToSubmit))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	for i := range 200 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.store.UpdateStatus(at(time.Hour), subs[i%len(subs)].ID, models.StatusInReview, nil)
			// Optimistic backends may give up under contention; one writer per key always wins.
			if !errors.Is(err, sentinel.ErrConflict) {
				record(err)
			}
		}()
		go func() {
			defer wg.Done()
			items, _, err := s.store.List(context.Background(), models.ListFilter{Limit: 10})
			record(err)
			for _, it := range items {
				it.Status = models.StatusRejected
			}
			_, err = s.store.Stats(context.Background())
			record(err)
		}()
	}
	wg.Wait()
	s.Require().Empty(errs)

	items, total, err := s.store.List(context.Background(), models.ListFilter{Statuses: []models.Status{models.StatusInReview}})
	s.Require().NoError(err)
	s.Equal(len(subs), total)
	for _, it := range items {
		s.Equal(models.StatusInReview, it.Status, "listed copies must not leak back into the store")
	}
}

func (s *storeContract) TestStats() {
	s.Run("empty store has zeroed buckets", func() {
		st, err := s.store.Stats(context.Background())
		s.Require().NoError(err)
		s.Zero(st.Total)
		s.Len(st.ByStatus, len(models.AllStatuses))
		s.Len(st.ByPriority, len(models.AllPriorities))
	})

	s.Run("counts by status and priority", func() {
		s.create(0, "acme", decision.DecisionOKToSubmit)
		blocked := s.create(time.Minute, "beta", decision.DecisionBlocked)
		_, err := s.store.UpdateStatus(at(time.Hour), blocked.ID, models.StatusBlocked, nil)
		s.Require().NoError(err)

		st, err := s.store.Stats(context.Background())
		s.Require().NoError(err)
		s.Equal(2, st.Total)
		s.Equal(1, st.ByStatus[models.StatusSubmitted])
		s.Equal(1, st.ByStatus[models.StatusBlocked])
		s.Equal(1, st.ByPriority[models.PriorityHigh])
		s.Equal(1, st.ByPriority[models.PriorityLow])
		s.Zero(st.ByPriority[models.PriorityMedium])
	})
}

func ids(items []*models.Submission) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
