package store

import "errors"

// Sentinel errors mapped from the engine-level error taxonomy. Callers in
// pkg/jobengine, pkg/gateway, pkg/webhook, pkg/reconcile, and pkg/approval
// translate these into the Transient/RateLimited/Invalid/Unauthorized/
// NotFound/BudgetFrozen/Conflict categories and the matching HTTP status.
var (
	// ErrNotFound means the requested row does not exist (or is not visible
	// to the caller's tenant).
	ErrNotFound = errors.New("store: not found")

	// ErrConflict means a check-and-set update lost the race: the row's
	// status or claimed_by no longer matched the expected value. Callers
	// treat this as a silent no-op, not a failure.
	ErrConflict = errors.New("store: conflict")

	// ErrInvalid means the caller supplied a value that violates an
	// invariant (e.g. max_attempts < 1, priority out of range).
	ErrInvalid = errors.New("store: invalid")

	// ErrUnauthorized means an operation was attempted outside the
	// requester's tenant, or credentials were missing/expired.
	ErrUnauthorized = errors.New("store: unauthorized")

	// ErrRateLimited means a local token bucket denied the call.
	ErrRateLimited = errors.New("store: rate limited")

	// ErrBudgetFrozen means the action is blocked by a frozen budget.
	ErrBudgetFrozen = errors.New("store: budget frozen")
)
