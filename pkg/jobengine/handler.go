package jobengine

import (
	"context"
	"encoding/json"

	"github.com/ordermesh/hub/internal/store"
)

// HandlerFunc executes one job attempt. It returns a JSON result to persist
// alongside the completed job, or an error classified per spec.md §7
// (wrap with *RateLimitedError for the RateLimited category; return a
// store sentinel error, or an error wrapping one, for Invalid/Unauthorized/
// NotFound/BudgetFrozen/Conflict; anything else is treated as Transient).
type HandlerFunc func(ctx context.Context, job store.Job) (json.RawMessage, error)
