package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/tenant"
)

// ControlHandler exposes read-only debug visibility into a store's rate
// limit bucket state (spec.md §4.3), for operators diagnosing throttling
// without reaching into Postgres directly.
type ControlHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewControlHandler creates a gateway control-API ControlHandler.
func NewControlHandler(s *store.Store, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{store: s, logger: logger}
}

// Mount registers the rate-limit-state route onto r, which the caller is
// expected to itself mount under /stores/{storeID}. It takes an existing
// router rather than returning its own, since the stores sub-tree is shared
// with the scheduler's reconcile-trigger route.
func (h *ControlHandler) Mount(r chi.Router) {
	r.Get("/rate-limit-state", h.handleRateLimitState)
}

// rateLimitStateResponse deliberately omits PlatformStore.Credentials; the
// sealed blob has no business leaving the process even base64-encoded.
type rateLimitStateResponse struct {
	StoreID          uuid.UUID       `json:"store_id"`
	Platform         string          `json:"platform"`
	RateLimitState   json.RawMessage `json:"rate_limit_state"`
	RateLimitVersion int             `json:"rate_limit_version"`
	LastSyncedAt     *time.Time      `json:"last_synced_at,omitempty"`
	IsActive         bool            `json:"is_active"`
}

func (h *ControlHandler) handleRateLimitState(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "storeID must be a uuid")
		return
	}

	ps, err := h.store.GetPlatformStore(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, rateLimitStateResponse{
		StoreID:          ps.ID,
		Platform:         ps.Platform,
		RateLimitState:   ps.RateLimitState,
		RateLimitVersion: ps.RateLimitVersion,
		LastSyncedAt:     ps.LastSyncedAt,
		IsActive:         ps.IsActive,
	})
}
