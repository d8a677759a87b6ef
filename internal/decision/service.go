package decision

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"compliancelab/internal/audit"
	"compliancelab/internal/decision/metrics"
	"compliancelab/internal/decision/ports"
	"compliancelab/internal/expiry"
	"compliancelab/internal/regulatory"
	"compliancelab/pkg/requestcontext"
)

// Service orchestrates one evaluation: engine, regulatory context, metrics
// and audit. The reference date comes from the request-scoped clock so a
// replay can pin it.
type Service struct {
	engine    *Engine
	retriever ports.ContextRetriever
	auditor   ports.AuditPort
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithAuditor(a ports.AuditPort) ServiceOption {
	return func(s *Service) { s.auditor = a }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService builds a decision service. retriever may be nil, in which case
// verdicts carry an empty regulatory context.
func NewService(engine *Engine, retriever ports.ContextRetriever, opts ...ServiceOption) *Service {
	s := &Service{
		engine:    engine,
		retriever: retriever,
		logger:    slog.Default(),
		tracer:    otel.Tracer("compliancelab/decision"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate returns a complete verdict for req or an error; never a partial verdict.
func (s *Service) Evaluate(ctx context.Context, req LicenseRequest) (*Verdict, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "decision.Evaluate", trace.WithAttributes(
		attribute.String("license.state", req.State),
		attribute.String("license.purchase_intent", req.PurchaseIntent),
	))
	defer span.End()

	today := requestcontext.Now(ctx)
	v, err := s.engine.Evaluate(req, today)
	if err != nil {
		s.metrics.IncrementRejected()
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation rejected")
		return nil, err
	}
	v.RegulatoryContext = s.contextFor(v)

	s.metrics.IncrementVerdict(v.Status.String(), v.AllowCheckout)
	for _, rule := range v.BlockedBy {
		s.metrics.IncrementBlockingRule(rule)
	}
	s.metrics.ObserveEvaluateLatency(time.Since(start))

	span.SetAttributes(
		attribute.Bool("verdict.allow_checkout", v.AllowCheckout),
		attribute.String("verdict.status", v.Status.String()),
		attribute.Int("verdict.days_to_expiry", v.DaysToExpiry),
	)
	s.emit(ctx, v)
	return v, nil
}

// NearExpiryWindow exposes the engine's configured window.
func (s *Service) NearExpiryWindow() int {
	return s.engine.NearExpiryWindow()
}

// contextFor picks the explanatory snippets for v: everything for the
// license's state, the federal expiry excerpt once the license is no longer
// active, and the federal controlled-substance excerpt when any attestation
// applies.
func (s *Service) contextFor(v *Verdict) []regulatory.Snippet {
	out := []regulatory.Snippet{}
	if s.retriever == nil {
		return out
	}
	out = slices.AppendSeq(out, s.retriever.Search(v.State, ""))
	if v.Status != expiry.StatusActive {
		out = slices.AppendSeq(out, s.retriever.Search(regulatory.JurisdictionFederal, "expiry"))
	}
	if len(v.AttestationsRequired) > 0 {
		out = slices.AppendSeq(out, s.retriever.Search(regulatory.JurisdictionFederal, "controlled_substances"))
	}
	return out
}

func (s *Service) emit(ctx context.Context, v *Verdict) {
	if s.auditor == nil {
		return
	}
	reasons := make([]string, 0, len(v.Reasons))
	for _, r := range v.Reasons {
		reasons = append(reasons, string(r))
	}
	event := audit.Event{
		Action:    audit.ActionDecisionEvaluated,
		State:     v.State,
		Decision:  string(DecisionStatusFor(v)),
		Reason:    strings.Join(reasons, ","),
		RequestID: requestcontext.RequestID(ctx),
	}
	// Audit is best effort; a verdict is never withheld because a sink failed.
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}
