package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/tenant"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	return &Handler{store: s, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	q := r.URL.Query()
	entries, err := h.store.ListAuditEntries(r.Context(), store.ListAuditEntriesFilter{
		TenantID:     tenant.FromContext(r.Context()),
		ResourceType: q.Get("resource_type"),
		Action:       q.Get("action"),
		Limit:        params.PageSize,
		Offset:       params.Offset,
	})
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(entries, params))
}
