package approval

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/tenant"
)

// ControlHandler exposes the Internal Control API surface for operator
// sign-off: the pending approval queue and budget state, plus the two
// write actions an operator can take (decide an approval, unfreeze a
// budget).
type ControlHandler struct {
	store  *store.Store
	engine *Engine
	logger *slog.Logger
}

// NewControlHandler creates an approvals/budgets control-API ControlHandler.
func NewControlHandler(s *store.Store, e *Engine, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{store: s, engine: e, logger: logger}
}

// ApprovalRoutes returns a chi.Router with the approval queue routes mounted.
func (h *ControlHandler) ApprovalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListApprovals)
	r.Get("/{id}", h.handleGetApproval)
	r.Post("/{id}/decide", h.handleDecideApproval)
	return r
}

// BudgetRoutes returns a chi.Router with the budget routes mounted.
func (h *ControlHandler) BudgetRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListBudgets)
	r.Get("/{id}", h.handleGetBudget)
	r.Post("/{id}/unfreeze", h.handleUnfreezeBudget)
	return r
}

func (h *ControlHandler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	approvals, err := h.store.ListPendingApprovals(r.Context(), tenant.FromContext(r.Context()), params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing pending approvals", "error", err)
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(approvals, params))
}

func (h *ControlHandler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	approval, err := h.store.GetApproval(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, approval)
}

type decideApprovalRequest struct {
	Approved  bool    `json:"approved"`
	DecidedBy string  `json:"decided_by"`
	Reason    *string `json:"reason,omitempty"`
}

func (h *ControlHandler) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	var req decideApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "malformed request body")
		return
	}
	if req.DecidedBy == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "decided_by is required")
		return
	}

	approval, err := h.engine.Decide(r.Context(), tenant.FromContext(r.Context()), id, req.Approved, req.DecidedBy, req.Reason)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, approval)
}

func (h *ControlHandler) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.store.ListBudgets(r.Context(), tenant.FromContext(r.Context()))
	if err != nil {
		h.logger.Error("listing budgets", "error", err)
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, budgets)
}

func (h *ControlHandler) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	budget, err := h.store.GetBudget(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, budget)
}

func (h *ControlHandler) handleUnfreezeBudget(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	budget, err := h.engine.Unfreeze(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	h.logger.Info("budget unfrozen by operator", "budget_id", id)
	httpserver.Respond(w, http.StatusOK, budget)
}
