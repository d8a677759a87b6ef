package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"compliancelab/internal/expiry"
	"compliancelab/internal/trace"
	"compliancelab/pkg/platform/httputil"
	"compliancelab/pkg/requestcontext"
)

// Service defines the trace operations exposed over HTTP.
type Service interface {
	Summary(ctx context.Context, traceID string) (*trace.Summary, error)
	Replay(ctx context.Context, traceID string, asOf time.Time) (*trace.ReplayResult, error)
}

// Handler wires trace endpoints to the trace service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts trace endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/traces/{trace_id}", h.HandleGet)
	r.Post("/v1/traces/{trace_id}/replay", h.HandleReplay)
}

// HandleGet handles GET /v1/traces/{trace_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := chi.URLParam(r, "trace_id")

	sum, err := h.service.Summary(ctx, traceID)
	if err != nil {
		h.logger.WarnContext(ctx, "trace lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"trace_id", traceID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// HandleReplay handles POST /v1/traces/{trace_id}/replay. An optional
// as_of=YYYY-MM-DD query parameter replays against a different day.
func (h *Handler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	traceID := chi.URLParam(r, "trace_id")

	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := expiry.ParseDate(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		asOf = parsed
	}

	res, err := h.service.Replay(ctx, traceID, asOf)
	if err != nil {
		h.logger.WarnContext(ctx, "trace replay failed",
			"request_id", requestID,
			"trace_id", traceID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "trace replayed",
		"request_id", requestID,
		"trace_id", traceID,
		"matches", res.Matches,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}
