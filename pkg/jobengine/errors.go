package jobengine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/gateway"
)

// RateLimitedError signals that a handler should be rescheduled at
// RetryAfter without incrementing the job's attempt count (spec.md §7:
// "do not increment attempts").
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// outcome is the Job Engine's internal classification of a handler result,
// mapped from spec.md §7's abstract error taxonomy.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomeRateLimited
	outcomePermanent
	outcomeConflict
)

// classify maps a handler error onto one of the taxonomy's outcomes. Errors
// the engine doesn't recognize (a handler panic recovery, a raw network
// error) are treated as Transient, per spec.md §7's propagation policy.
func classify(err error) (outcome, time.Duration) {
	if err == nil {
		return outcomeSuccess, 0
	}

	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return outcomeRateLimited, rl.RetryAfter
	}

	// gateway.Call returns its own *gateway.RateLimitedError (a local bucket
	// empty or a platform 429), distinct from the type above but carrying
	// the same retry-without-incrementing-attempts contract.
	var grl *gateway.RateLimitedError
	if errors.As(err, &grl) {
		return outcomeRateLimited, grl.RetryAfter
	}

	switch {
	case errors.Is(err, store.ErrConflict):
		return outcomeConflict, 0
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, store.ErrUnauthorized),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrBudgetFrozen):
		return outcomePermanent, 0
	default:
		return outcomeTransient, 0
	}
}
