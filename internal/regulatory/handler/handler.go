package handler

import (
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"compliancelab/internal/regulatory"
	dErrors "compliancelab/pkg/domain-errors"
	"compliancelab/pkg/platform/httputil"
	"compliancelab/pkg/requestcontext"
)

// Retriever is the lookup the handler serves.
type Retriever interface {
	Search(jurisdiction, topic string) iter.Seq[regulatory.Snippet]
	Jurisdictions() []string
}

// Handler exposes regulatory reference data.
type Handler struct {
	retriever Retriever
	logger    *slog.Logger
}

func New(retriever Retriever, logger *slog.Logger) *Handler {
	return &Handler{retriever: retriever, logger: logger}
}

// Register mounts regulatory endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/regulatory/snippets", h.HandleSearch)
	r.Get("/v1/regulatory/jurisdictions", h.HandleJurisdictions)
}

// SnippetsResponse is the HTTP response for GET /v1/regulatory/snippets.
type SnippetsResponse struct {
	Jurisdiction string               `json:"jurisdiction"`
	Topic        string               `json:"topic,omitempty"`
	Snippets     []regulatory.Snippet `json:"snippets"`
}

// HandleSearch handles GET /v1/regulatory/snippets?jurisdiction=&topic=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	jurisdiction := strings.ToUpper(strings.TrimSpace(q.Get("jurisdiction")))
	topic := strings.ToLower(strings.TrimSpace(q.Get("topic")))

	if jurisdiction == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "jurisdiction is required"))
		return
	}

	snippets := slices.AppendSeq([]regulatory.Snippet{}, h.retriever.Search(jurisdiction, topic))
	h.logger.DebugContext(ctx, "regulatory lookup",
		"request_id", requestcontext.RequestID(ctx),
		"jurisdiction", jurisdiction,
		"topic", topic,
		"matches", len(snippets),
	)
	httputil.WriteJSON(w, http.StatusOK, SnippetsResponse{
		Jurisdiction: jurisdiction,
		Topic:        topic,
		Snippets:     snippets,
	})
}

// HandleJurisdictions handles GET /v1/regulatory/jurisdictions.
func (h *Handler) HandleJurisdictions(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{
		"jurisdictions": h.retriever.Jurisdictions(),
	})
}
