package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"compliancelab/internal/decision"
	"compliancelab/internal/intake"
	"compliancelab/internal/trace"
	"compliancelab/pkg/platform/httputil"
	"compliancelab/pkg/requestcontext"
)

// Service defines the interface for decision operations.
type Service interface {
	Evaluate(ctx context.Context, req decision.LicenseRequest) (*decision.Verdict, error)
}

// Normalizer folds raw intake fields into a license request.
type Normalizer interface {
	Normalize(source intake.Source, fields map[string]any) (*intake.Result, error)
}

// TraceRecorder stores the evaluation so it can be summarised and replayed.
type TraceRecorder interface {
	Record(ctx context.Context, rec *trace.Record) error
}

// Handler wires decision endpoints to the decision service.
type Handler struct {
	service    Service
	normalizer Normalizer
	traces     TraceRecorder
	logger     *slog.Logger
}

// New constructs a decision handler with its dependencies. traces may be nil.
func New(service Service, normalizer Normalizer, traces TraceRecorder, logger *slog.Logger) *Handler {
	return &Handler{
		service:    service,
		normalizer: normalizer,
		traces:     traces,
		logger:     logger,
	}
}

// Register mounts decision endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/decisions/evaluate", h.HandleEvaluate)
	r.Post("/v1/intake/normalize", h.HandleNormalize)
}

// HandleEvaluate handles POST /v1/decisions/evaluate requests.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	licenseReq := req.ToLicenseRequest()
	verdict, err := h.service.Evaluate(ctx, licenseReq)
	if err != nil {
		h.logger.WarnContext(ctx, "decision evaluation failed",
			"request_id", requestID,
			"state", req.State,
			"purchase_intent", req.PurchaseIntent,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	traceID := h.record(ctx, trace.SourceEvaluate, licenseReq, verdict)

	h.logger.InfoContext(ctx, "decision evaluated",
		"request_id", requestID,
		"trace_id", traceID,
		"state", verdict.State,
		"status", verdict.Status,
		"allow_checkout", verdict.AllowCheckout,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromVerdict(verdict, traceID))
}

// HandleNormalize handles POST /v1/intake/normalize. With evaluate=true the
// normalized request is also run through the engine.
func (h *Handler) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[NormalizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.normalizer.Normalize(req.ParsedSource(), req.Fields)
	if err != nil {
		h.logger.WarnContext(ctx, "intake normalization failed",
			"request_id", requestID,
			"source", req.ParsedSource(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := FromIntake(res)
	if req.Evaluate {
		verdict, err := h.service.Evaluate(ctx, res.Request)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		src := trace.SourceIntakeManual
		if res.Source == intake.SourcePDFStub {
			src = trace.SourceIntakePDFStub
		}
		resp.Verdict = FromVerdict(verdict, h.record(ctx, src, res.Request, verdict))
	}

	h.logger.InfoContext(ctx, "intake normalized",
		"request_id", requestID,
		"source", res.Source,
		"ignored_fields", len(res.Ignored),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// record stores a trace and returns its id. A failed write is logged and the
// verdict is still returned, just without a trace id.
func (h *Handler) record(ctx context.Context, src trace.Source, req decision.LicenseRequest, v *decision.Verdict) string {
	if h.traces == nil {
		return ""
	}
	rec := &trace.Record{Source: src, Request: req, Verdict: *v}
	if err := h.traces.Record(ctx, rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to record trace",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return ""
	}
	return rec.TraceID
}
