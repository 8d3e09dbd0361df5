package httpserver

import (
	"errors"
	"net/http"

	"github.com/ordermesh/hub/internal/store"
)

// RespondStoreError maps a store sentinel error (spec.md §7's Transient /
// Invalid / Unauthorized / NotFound / BudgetFrozen / Conflict taxonomy) onto
// the JSON error envelope. Errors it doesn't recognize are treated as
// internal.
func RespondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		RespondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, store.ErrInvalid):
		RespondError(w, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, store.ErrUnauthorized):
		RespondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, store.ErrRateLimited):
		RespondError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, store.ErrBudgetFrozen):
		RespondError(w, http.StatusForbidden, "budget_frozen", err.Error())
	default:
		RespondError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
	}
}
