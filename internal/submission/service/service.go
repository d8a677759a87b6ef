// Package service runs CSF submissions: evaluate, persist, trace, and move
// through review.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"compliancelab/internal/audit"
	"compliancelab/internal/decision"
	"compliancelab/internal/expiry"
	"compliancelab/internal/submission/metrics"
	"compliancelab/internal/submission/models"
	"compliancelab/internal/trace"
	dErrors "compliancelab/pkg/domain-errors"
	"compliancelab/pkg/platform/sentinel"
	"compliancelab/pkg/requestcontext"
)

// Store is the narrow persistence port. Implementations return sentinel
// errors and hand out copies.
type Store interface {
	Create(ctx context.Context, sub *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Submission, int, error)
	UpdateStatus(ctx context.Context, id string, next models.Status, guard models.StatusGuard) (*models.Submission, error)
	Stats(ctx context.Context) (*models.Statistics, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, req decision.LicenseRequest) (*decision.Verdict, error)
}

type TraceRecorder interface {
	Record(ctx context.Context, rec *trace.Record) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SubmitInput is one CSF submission. Input is the caller's original body,
// echoed into the stored payload next to the verdict.
type SubmitInput struct {
	CSFType models.CSFType
	Tenant  string
	Request decision.LicenseRequest
	Input   json.RawMessage
}

// SubmitResult is what the caller needs to follow the submission.
type SubmitResult struct {
	SubmissionID   string                  `json:"submission_id"`
	TraceID        string                  `json:"trace_id"`
	Status         models.Status           `json:"status"`
	DecisionStatus decision.DecisionStatus `json:"decision_status"`
	Priority       models.Priority         `json:"priority"`
	CreatedAt      time.Time               `json:"created_at"`
	Verdict        *decision.Verdict       `json:"verdict"`
}

// WorkQueue is a filtered page of submissions plus store-wide statistics.
// Total counts every match before the limit.
type WorkQueue struct {
	Items      []*models.Submission `json:"items"`
	Statistics *models.Statistics   `json:"statistics"`
	Total      int                  `json:"total"`
}

type payload struct {
	Input   json.RawMessage   `json:"input"`
	Verdict *decision.Verdict `json:"verdict"`
}

// Service orchestrates submissions.
type Service struct {
	store            Store
	evaluator        Evaluator
	traces           TraceRecorder
	auditor          AuditPublisher
	metrics          *metrics.Metrics
	logger           *slog.Logger
	tracer           oteltrace.Tracer
	enforceStatusFSM bool
}

type Option func(*Service)

func WithTraceRecorder(t TraceRecorder) Option {
	return func(s *Service) { s.traces = t }
}

func WithAuditPublisher(a AuditPublisher) Option {
	return func(s *Service) { s.auditor = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTransitionEnforcement toggles the status transition table. It is on by
// default; turning it off lets any status be set from any status.
func WithTransitionEnforcement(enabled bool) Option {
	return func(s *Service) { s.enforceStatusFSM = enabled }
}

// New constructs a Service.
func New(store Store, evaluator Evaluator, opts ...Option) *Service {
	s := &Service{
		store:            store,
		evaluator:        evaluator,
		logger:           slog.Default(),
		tracer:           otel.Tracer("compliancelab/submission"),
		enforceStatusFSM: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit evaluates the request, stores the submission and links its trace.
// A failed trace write is logged; the submission stands.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Submit", oteltrace.WithAttributes(
		attribute.String("submission.csf_type", string(in.CSFType)),
		attribute.String("submission.tenant", in.Tenant),
	))
	defer span.End()

	if !in.CSFType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown csf_type: "+string(in.CSFType))
	}

	verdict, err := s.evaluator.Evaluate(ctx, in.Request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation rejected")
		return nil, err
	}

	body, err := buildPayload(in, verdict)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode submission payload")
	}
	ds := decision.DecisionStatusFor(verdict)
	sub := &models.Submission{
		CSFType:        in.CSFType,
		Tenant:         strings.TrimSpace(in.Tenant),
		Priority:       models.DerivePriority(ds),
		Title:          titleFor(in.CSFType, verdict.State),
		Subtitle:       subtitleFor(in.Request),
		Summary:        summaryFor(verdict),
		Payload:        body,
		DecisionStatus: ds,
		RiskLevel:      decision.RiskLevelFor(ds),
	}
	if err := s.store.Create(ctx, sub); err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "submission id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create submission")
	}

	s.recordTrace(ctx, sub, in.Request, verdict)
	s.metrics.IncrementCreated(string(sub.CSFType), string(sub.Priority))
	s.emit(ctx, audit.Event{
		Action:       audit.ActionSubmissionCreated,
		SubmissionID: sub.ID,
		TraceID:      sub.TraceID,
		Tenant:       sub.Tenant,
		State:        verdict.State,
		Decision:     string(ds),
		Reason:       string(sub.Priority),
	})

	span.SetAttributes(
		attribute.String("submission.id", sub.ID),
		attribute.String("submission.decision_status", string(ds)),
	)
	s.logger.InfoContext(ctx, "submission created",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", sub.ID,
		"trace_id", sub.TraceID,
		"csf_type", sub.CSFType,
		"priority", sub.Priority,
	)

	return &SubmitResult{
		SubmissionID:   sub.ID,
		TraceID:        sub.TraceID,
		Status:         sub.Status,
		DecisionStatus: ds,
		Priority:       sub.Priority,
		CreatedAt:      sub.CreatedAt,
		Verdict:        verdict,
	}, nil
}

// Get returns one submission.
func (s *Service) Get(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submission")
	}
	return sub, nil
}

// WorkQueue lists matching submissions newest first and gathers statistics
// over the whole store in parallel.
func (s *Service) WorkQueue(ctx context.Context, filter models.ListFilter) (*WorkQueue, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "submission.WorkQueue")
	defer span.End()

	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+string(st))
		}
	}
	if filter.Limit < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "limit must be non-negative")
	}

	var (
		items []*models.Submission
		total int
		stats *models.Statistics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, total, err = s.store.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.store.Stats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load work queue")
	}

	s.metrics.ObserveWorkQueueLatency(time.Since(start))
	span.SetAttributes(attribute.Int("work_queue.total", total))
	return &WorkQueue{Items: items, Statistics: stats, Total: total}, nil
}

// UpdateStatus moves a submission to next. With enforcement on, the move is
// checked against the transition table inside the store's update.
func (s *Service) UpdateStatus(ctx context.Context, id string, next models.Status) (*models.Submission, error) {
	if !next.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+string(next))
	}

	var previous models.Status
	guard := func(current *models.Submission, to models.Status) error {
		previous = current.Status
		if s.enforceStatusFSM && !current.Status.CanTransitionTo(to) {
			s.metrics.IncrementIllegalTransition(string(current.Status), string(to))
			return dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("cannot move submission from %s to %s", current.Status, to))
		}
		return nil
	}

	sub, err := s.store.UpdateStatus(ctx, id, next, guard)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		case dErrors.HasCode(err, dErrors.CodeInvalidState):
			return nil, err
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "submission was modified concurrently")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update submission")
		}
	}

	s.metrics.IncrementTransition(string(previous), string(sub.Status))
	s.emit(ctx, audit.Event{
		Action:       audit.ActionSubmissionStatus,
		SubmissionID: sub.ID,
		TraceID:      sub.TraceID,
		Tenant:       sub.Tenant,
		Decision:     string(sub.Status),
		Reason:       string(previous) + "->" + string(sub.Status),
	})
	s.logger.InfoContext(ctx, "submission status updated",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", sub.ID,
		"from", previous,
		"to", sub.Status,
	)
	return sub, nil
}

// LinkedSubmission reports the live state of a submission for trace summaries.
func (s *Service) LinkedSubmission(ctx context.Context, id string) (*trace.LinkedSubmission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &trace.LinkedSubmission{
		SubmissionID: sub.ID,
		Status:       string(sub.Status),
		Priority:     string(sub.Priority),
		UpdatedAt:    sub.UpdatedAt,
	}, nil
}

func (s *Service) recordTrace(ctx context.Context, sub *models.Submission, req decision.LicenseRequest, v *decision.Verdict) {
	if s.traces == nil {
		return
	}
	rec := &trace.Record{
		TraceID:      sub.TraceID,
		SubmissionID: sub.ID,
		Source:       trace.SourceSubmission,
		Request:      req,
		Verdict:      *v,
	}
	if err := s.traces.Record(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to record submission trace",
			"request_id", requestcontext.RequestID(ctx),
			"submission_id", sub.ID,
			"trace_id", sub.TraceID,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"submission_id", event.SubmissionID,
			"error", err,
		)
	}
}

func buildPayload(in SubmitInput, v *decision.Verdict) (json.RawMessage, error) {
	input := in.Input
	if len(input) == 0 {
		raw, err := json.Marshal(in.Request)
		if err != nil {
			return nil, err
		}
		input = raw
	}
	return json.Marshal(payload{Input: input, Verdict: v})
}

func titleFor(csfType models.CSFType, state string) string {
	return fmt.Sprintf("%s CSF for %s", csfType.Label(), state)
}

func subtitleFor(req decision.LicenseRequest) string {
	parts := make([]string, 0, 3)
	if req.StatePermit != "" {
		parts = append(parts, "Permit "+req.StatePermit)
	}
	if req.PurchaseIntent != "" {
		parts = append(parts, req.PurchaseIntent)
	}
	parts = append(parts, fmt.Sprintf("qty %d", req.Quantity))
	return strings.Join(parts, ", ")
}

func summaryFor(v *decision.Verdict) string {
	var parts []string
	switch v.Status {
	case expiry.StatusExpired:
		parts = append(parts, fmt.Sprintf("License expired %d days ago", -v.DaysToExpiry))
	case expiry.StatusNearExpiry:
		parts = append(parts, fmt.Sprintf("License expires in %d days", v.DaysToExpiry))
	}
	if n := len(v.AttestationsRequired); n > 0 {
		parts = append(parts, fmt.Sprintf("%d attestation(s) required", n))
	}
	if len(v.BlockedBy) > 0 {
		parts = append(parts, "Blocked by "+strings.Join(v.BlockedBy, ", "))
	}
	if len(parts) == 0 {
		return "All checks passed"
	}
	return strings.Join(parts, "; ")
}
