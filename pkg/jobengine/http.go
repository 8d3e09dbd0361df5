package jobengine

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/tenant"
)

var validate = validator.New()

// ControlHandler exposes the Internal Control API surface for job
// visibility and operator intervention (spec.md §6): enqueueing, listing
// and inspecting jobs, and retrying or cancelling a job by hand. It does
// not run jobs itself; that is Engine's job (no pun intended).
type ControlHandler struct {
	store  *store.Store
	engine *Engine
	logger *slog.Logger
}

// NewControlHandler creates a jobs control-API ControlHandler.
func NewControlHandler(s *store.Store, e *Engine, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{store: s, engine: e, logger: logger}
}

// Routes returns a chi.Router with the jobs control routes mounted.
func (h *ControlHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleEnqueue)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/retry", h.handleRetry)
	r.Post("/{id}/cancel", h.handleCancel)
	return r
}

// enqueueJobRequest is the body of POST /jobs. Validation mirrors spec.md
// §4.2's Enqueue invariants (max_attempts ≥ 1, priority ∈ [0, 100]);
// scheduled_at's "not more than 60s in the past" rule isn't expressible as
// a struct tag, so it's checked separately in handleEnqueue.
type enqueueJobRequest struct {
	StoreID        *uuid.UUID      `json:"store_id"`
	Type           string          `json:"type" validate:"required"`
	Payload        json.RawMessage `json:"payload" validate:"required"`
	Priority       int             `json:"priority" validate:"min=0,max=100"`
	MaxAttempts    int             `json:"max_attempts" validate:"omitempty,min=1"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	IdempotencyKey string          `json:"idempotency_key" validate:"required"`
}

func (h *ControlHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "malformed JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		if req.ScheduledAt.Before(time.Now().Add(-60 * time.Second)) {
			httpserver.RespondError(w, http.StatusBadRequest, "invalid", "scheduled_at must not be more than 60s in the past")
			return
		}
		scheduledAt = *req.ScheduledAt
	}

	job, err := h.engine.Enqueue(r.Context(), store.EnqueueJobParams{
		TenantID:       tenant.FromContext(r.Context()),
		StoreID:        req.StoreID,
		Type:           req.Type,
		Payload:        req.Payload,
		Priority:       req.Priority,
		MaxAttempts:    req.MaxAttempts,
		ScheduledAt:    scheduledAt,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, job)
}

func (h *ControlHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	q := r.URL.Query()
	var storeID *uuid.UUID
	if raw := q.Get("store_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "invalid", "store_id must be a uuid")
			return
		}
		storeID = &id
	}

	jobs, err := h.store.ListJobs(r.Context(), store.ListJobsFilter{
		TenantID: tenant.FromContext(r.Context()),
		StoreID:  storeID,
		Status:   q.Get("status"),
		Limit:    params.PageSize,
		Offset:   params.Offset,
	})
	if err != nil {
		h.logger.Error("listing jobs", "error", err)
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(jobs, params))
}

func (h *ControlHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	job, err := h.store.GetJob(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, job)
}

func (h *ControlHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	job, err := h.store.RetryJob(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	h.logger.Info("job retried by operator", "job_id", id)
	httpserver.Respond(w, http.StatusOK, job)
}

func (h *ControlHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid", "id must be a uuid")
		return
	}

	job, err := h.store.CancelJob(r.Context(), tenant.FromContext(r.Context()), id)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	h.logger.Info("job cancelled by operator", "job_id", id)
	httpserver.Respond(w, http.StatusOK, job)
}
