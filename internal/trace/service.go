package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"compliancelab/internal/audit"
	"compliancelab/internal/decision"
	"compliancelab/internal/expiry"
	dErrors "compliancelab/pkg/domain-errors"
	"compliancelab/pkg/platform/sentinel"
	"compliancelab/pkg/requestcontext"
)

// Evaluator re-runs a decision; the reference date is read from ctx.
type Evaluator interface {
	Evaluate(ctx context.Context, req decision.LicenseRequest) (*decision.Verdict, error)
}

// SubmissionLookup reports the live state of a linked submission.
type SubmissionLookup interface {
	LinkedSubmission(ctx context.Context, submissionID string) (*LinkedSubmission, error)
}

// Service records, summarises and replays traces.
type Service struct {
	store       Store
	evaluator   Evaluator
	submissions SubmissionLookup
	auditor     audit.Emitter
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithSubmissionLookup(l SubmissionLookup) Option {
	return func(s *Service) { s.submissions = l }
}

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) { s.auditor = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, evaluator Evaluator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		evaluator: evaluator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSubmissionLookup wires the submission side after construction; the
// submission service itself depends on this one.
func (s *Service) SetSubmissionLookup(l SubmissionLookup) {
	s.submissions = l
}

// Record stores rec, assigning a trace id when absent. RecordedAt comes from
// the request clock.
func (s *Service) Record(ctx context.Context, rec *Record) error {
	if rec.TraceID == "" {
		rec.TraceID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = requestcontext.Now(ctx)
	}
	if rec.ReferenceDate.IsZero() {
		rec.ReferenceDate = rec.Verdict.ReferenceDate
	}
	if err := s.store.Save(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "trace id already recorded")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record trace")
	}
	return nil
}

// Get returns the stored trace.
func (s *Service) Get(ctx context.Context, traceID string) (*Record, error) {
	rec, err := s.store.FindByID(ctx, traceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "trace not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trace")
	}
	return rec, nil
}

// Summary returns the trace with its submission's current state. A missing
// submission is logged and omitted rather than failing the summary.
func (s *Service) Summary(ctx context.Context, traceID string) (*Summary, error) {
	rec, err := s.Get(ctx, traceID)
	if err != nil {
		return nil, err
	}
	ds := decision.DecisionStatusFor(&rec.Verdict)
	sum := &Summary{
		Record:         rec,
		DecisionStatus: ds,
		RiskLevel:      decision.RiskLevelFor(ds),
	}
	if rec.SubmissionID == "" || s.submissions == nil {
		return sum, nil
	}
	linked, err := s.submissions.LinkedSubmission(ctx, rec.SubmissionID)
	if err != nil {
		s.logger.WarnContext(ctx, "linked submission unavailable",
			"trace_id", traceID,
			"submission_id", rec.SubmissionID,
			"error", err,
		)
		return sum, nil
	}
	sum.Submission = linked
	return sum, nil
}

// Replay re-evaluates the recorded request. With a zero asOf the recorded
// reference date is reused, so an unchanged rule set must reproduce the
// original verdict.
func (s *Service) Replay(ctx context.Context, traceID string, asOf time.Time) (*ReplayResult, error) {
	rec, err := s.Get(ctx, traceID)
	if err != nil {
		return nil, err
	}
	ref := rec.ReferenceDate
	if !asOf.IsZero() {
		ref = expiry.Day(asOf)
	}

	replayed, err := s.evaluator.Evaluate(requestcontext.WithTime(ctx, ref), rec.Request)
	if err != nil {
		return nil, err
	}

	diffs := compareVerdicts(&rec.Verdict, replayed)
	result := &ReplayResult{
		TraceID:       traceID,
		ReferenceDate: ref,
		Original:      &rec.Verdict,
		Replayed:      replayed,
		Matches:       len(diffs) == 0,
		Differences:   diffs,
	}

	if s.auditor != nil {
		reason := "matches"
		if !result.Matches {
			reason = fmt.Sprintf("%d differences", len(diffs))
		}
		event := audit.Event{
			Action:       audit.ActionTraceReplayed,
			TraceID:      traceID,
			SubmissionID: rec.SubmissionID,
			State:        rec.Request.State,
			Decision:     string(decision.DecisionStatusFor(replayed)),
			Reason:       reason,
			RequestID:    requestcontext.RequestID(ctx),
		}
		if err := s.auditor.Emit(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "trace_id", traceID, "error", err)
		}
	}
	return result, nil
}

// compareVerdicts lists the decision-relevant fields that differ. Regulatory
// context is explanatory and not compared.
func compareVerdicts(a, b *decision.Verdict) []string {
	var diffs []string
	if a.AllowCheckout != b.AllowCheckout {
		diffs = append(diffs, fmt.Sprintf("allow_checkout: %t -> %t", a.AllowCheckout, b.AllowCheckout))
	}
	if a.Status != b.Status {
		diffs = append(diffs, fmt.Sprintf("status: %s -> %s", a.Status, b.Status))
	}
	if a.DaysToExpiry != b.DaysToExpiry {
		diffs = append(diffs, fmt.Sprintf("days_to_expiry: %d -> %d", a.DaysToExpiry, b.DaysToExpiry))
	}
	if !slices.Equal(attestationIDs(a), attestationIDs(b)) {
		diffs = append(diffs, fmt.Sprintf("attestations: %v -> %v", attestationIDs(a), attestationIDs(b)))
	}
	if !slices.Equal(a.Reasons, b.Reasons) {
		diffs = append(diffs, fmt.Sprintf("reasons: %v -> %v", a.Reasons, b.Reasons))
	}
	if !slices.Equal(a.BlockedBy, b.BlockedBy) {
		diffs = append(diffs, fmt.Sprintf("blocked_by: %v -> %v", a.BlockedBy, b.BlockedBy))
	}
	return diffs
}

func attestationIDs(v *decision.Verdict) []string {
	ids := make([]string, 0, len(v.AttestationsRequired))
	for _, a := range v.AttestationsRequired {
		ids = append(ids, a.ID)
	}
	return ids
}
