package scheduler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/tenant"
)

// ControlHandler exposes the on-demand reconciliation trigger and the
// per-tenant SSE change feed (spec.md §5) over HTTP.
type ControlHandler struct {
	store  *store.Store
	engine *Engine
	logger *slog.Logger
}

// NewControlHandler creates a scheduler control-API ControlHandler.
func NewControlHandler(s *store.Store, e *Engine, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{store: s, engine: e, logger: logger}
}

// MountReconcile registers the reconcile-trigger route onto r, which the
// caller is expected to itself mount under /stores/{storeID}. It takes an
// existing router rather than returning its own, since the stores sub-tree
// is shared with the gateway's rate-limit-state route.
func (h *ControlHandler) MountReconcile(r chi.Router) {
	r.Post("/reconcile", h.handleTriggerReconcile)
}

func (h *ControlHandler) handleTriggerReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "storeID must be a uuid")
		return
	}

	if _, err := h.store.GetPlatformStore(r.Context(), tenant.FromContext(r.Context()), id); err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	h.engine.TriggerReconcile(r.Context(), id)
	httpserver.Respond(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// EventsRoutes returns a chi.Router with the SSE change-feed route mounted,
// meant to be mounted under /tenants/{tenantID}.
func (h *ControlHandler) EventsRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.handleEvents)
	return r
}

// handleEvents relays a tenant's Redis pub/sub change feed to the client as
// a Server-Sent Events stream. It blocks until the client disconnects.
func (h *ControlHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "tenantID must be a uuid")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	sub := h.engine.rdb.Subscribe(r.Context(), EventChannel(id))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sub.Channel()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
