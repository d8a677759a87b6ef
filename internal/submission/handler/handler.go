package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"compliancelab/internal/submission/models"
	"compliancelab/internal/submission/service"
	dErrors "compliancelab/pkg/domain-errors"
	"compliancelab/pkg/platform/httputil"
	platformstrings "compliancelab/pkg/platform/strings"
	"compliancelab/pkg/requestcontext"
)

// maxQueueLimit caps a single work-queue page.
const maxQueueLimit = 500

// Service defines the submission operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	WorkQueue(ctx context.Context, filter models.ListFilter) (*service.WorkQueue, error)
	UpdateStatus(ctx context.Context, id string, next models.Status) (*models.Submission, error)
}

// Handler wires submission endpoints to the submission service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts submission endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/submissions", h.HandleSubmit)
	r.Get("/v1/submissions", h.HandleWorkQueue)
	r.Get("/v1/submissions/{submission_id}", h.HandleGet)
	r.Patch("/v1/submissions/{submission_id}/status", h.HandleUpdateStatus)
}

// HandleSubmit handles POST /v1/submissions.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode submission input",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Submit(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "submission failed",
			"request_id", requestID,
			"csf_type", req.CSFType,
			"state", req.State,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleWorkQueue handles GET /v1/submissions?tenant=&status=a,b&limit=.
func (h *Handler) HandleWorkQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	queue, err := h.service.WorkQueue(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "work queue query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, queue)
}

// HandleGet handles GET /v1/submissions/{submission_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "submission_id")

	sub, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

// HandleUpdateStatus handles PATCH /v1/submissions/{submission_id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id := chi.URLParam(r, "submission_id")

	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	sub, err := h.service.UpdateStatus(ctx, id, req.ParsedStatus())
	if err != nil {
		h.logger.WarnContext(ctx, "status update failed",
			"request_id", requestID,
			"submission_id", id,
			"status", req.ParsedStatus(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	filter := models.ListFilter{Tenant: q.Get("tenant")}

	for _, raw := range platformstrings.SplitList(q["status"]) {
		st, err := models.ParseStatus(raw)
		if err != nil {
			return models.ListFilter{}, err
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return models.ListFilter{}, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
		}
		filter.Limit = min(limit, maxQueueLimit)
	}
	return filter, nil
}
