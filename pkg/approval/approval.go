// Package approval implements Approvals & Budgets (spec.md §4.6): the
// operator sign-off state machine, and a per-budget gobreaker.CircuitBreaker
// that fronts budget-gated calls so a breach is admitted-or-rejected
// in-process without a database round trip on every call.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/ordermesh/hub/internal/audit"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/internal/telemetry"
	"github.com/ordermesh/hub/pkg/notify"
)

const budgetOverrideTTL = 24 * time.Hour

// Engine decides approvals and enforces budget freezes.
type Engine struct {
	store    *store.Store
	audit    *audit.Writer
	notifier *notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[uuid.UUID]*gobreaker.CircuitBreaker
}

// New creates an Engine.
func New(s *store.Store, auditWriter *audit.Writer, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		audit:    auditWriter,
		notifier: notifier,
		logger:   logger,
		breakers: make(map[uuid.UUID]*gobreaker.CircuitBreaker),
	}
}

// Decide transitions a pending approval to approved or rejected.
func (e *Engine) Decide(ctx context.Context, tenantID, id uuid.UUID, approved bool, decidedBy string, reason *string) (store.Approval, error) {
	a, err := e.store.DecideApproval(ctx, tenantID, id, approved, decidedBy, reason)
	if err != nil {
		return store.Approval{}, err
	}

	e.audit.Log(audit.Entry{
		TenantID:     tenantID,
		ActorID:      &decidedBy,
		Action:       "approval_decided",
		ResourceType: a.ResourceType,
		ResourceID:   &a.ResourceID,
		Tags:         []string{store.TagApproval, store.TagDataModification},
	})

	if approved && a.Action == store.ApprovalActionBudgetOverride {
		e.resetBreaker(a.ResourceID)
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyApprovalDecided(ctx, a); err != nil {
			e.logger.Warn("notifying approval decision", "error", err, "approval_id", a.ID)
		}
	}

	return a, nil
}

// ExpireSweep transitions every pending approval whose expires_at has
// passed to expired, and audits the count.
func (e *Engine) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := e.store.ExpirePendingApprovals(ctx)
	if err != nil {
		return 0, fmt.Errorf("expiring approvals: %w", err)
	}
	if n > 0 {
		e.audit.Log(audit.Entry{
			Action:       "approval_expiry_sweep",
			ResourceType: "approval",
			NewValue:     mustMarshal(map[string]any{"expired_count": n}),
			Tags:         []string{store.TagApproval},
		})
	}
	return n, nil
}

// CheckBudgets runs the periodic per-tenant budget check (spec.md §4.6):
// every non-frozen budget at or over its limit is frozen and gated behind
// a 24-hour budget_override approval.
func (e *Engine) CheckBudgets(ctx context.Context) error {
	breached, err := e.store.ListNonFrozenBudgetsAtOrOverLimit(ctx)
	if err != nil {
		return fmt.Errorf("listing breached budgets: %w", err)
	}
	for _, b := range breached {
		e.trip(ctx, b)
	}
	return nil
}

// ResetBudgetPeriods advances any budget past its reset boundary to the
// next period, per spec.md §4.6: current resets to zero, but is_frozen is
// left untouched (the operator must unfreeze explicitly).
func (e *Engine) ResetBudgetPeriods(ctx context.Context) error {
	due, err := e.store.ListBudgetsPastResetBoundary(ctx)
	if err != nil {
		return fmt.Errorf("listing budgets past reset boundary: %w", err)
	}
	for _, b := range due {
		next := nextBoundary(b.ResetAt, b.Period)
		if _, err := e.store.ResetBudgetPeriod(ctx, b.ID, next); err != nil {
			e.logger.Error("resetting budget period", "error", err, "budget_id", b.ID)
			continue
		}
		e.audit.Log(audit.Entry{
			TenantID:     b.TenantID,
			Action:       "budget_period_reset",
			ResourceType: "budget",
			ResourceID:   &b.ID,
			Tags:         []string{store.TagAutomation},
		})
	}
	return nil
}

// Unfreeze clears a budget's frozen flag on explicit operator action and
// discards the in-process breaker so the next Admit call starts closed.
func (e *Engine) Unfreeze(ctx context.Context, tenantID, id uuid.UUID) (store.Budget, error) {
	b, err := e.store.UnfreezeBudget(ctx, tenantID, id)
	if err != nil {
		return store.Budget{}, err
	}
	e.resetBreaker(id)

	e.audit.Log(audit.Entry{
		TenantID:     tenantID,
		Action:       "budget_unfrozen",
		ResourceType: "budget",
		ResourceID:   &id,
		Tags:         []string{store.TagAutomation},
	})
	if e.notifier != nil {
		if err := e.notifier.NotifyBudgetUnfrozen(ctx, b); err != nil {
			e.logger.Warn("notifying budget unfreeze", "error", err, "budget_id", id)
		}
	}
	return b, nil
}

// Admit reports whether budget permits another unit of spend, via its
// gobreaker front door. Callers that already hold a freshly loaded Budget
// (e.g. the gateway, before an outbound call) should pass it directly so
// Admit never needs its own database round trip on the common path.
func (e *Engine) Admit(budget store.Budget) error {
	if budget.IsFrozen {
		return store.ErrBudgetFrozen
	}
	cb := e.breakerFor(budget)
	_, err := cb.Execute(func() (any, error) {
		if budget.Current >= budget.Limit {
			return nil, store.ErrBudgetFrozen
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return store.ErrBudgetFrozen
	}
	return err
}

func (e *Engine) trip(ctx context.Context, b store.Budget) {
	frozen, err := e.store.FreezeBudget(ctx, b.ID)
	if errors.Is(err, store.ErrConflict) {
		return // another checker already froze it this breach epoch
	}
	if err != nil {
		e.logger.Error("freezing budget", "error", err, "budget_id", b.ID)
		return
	}

	cb := e.breakerFor(frozen)
	_, _ = cb.Execute(func() (any, error) { return nil, store.ErrBudgetFrozen })

	telemetry.BudgetFreezesTotal.WithLabelValues(frozen.Type).Inc()

	payload := mustMarshal(map[string]any{
		"budget_type": frozen.Type,
		"current":     frozen.Current,
		"limit":       frozen.Limit,
	})
	if _, err := e.store.CreateApproval(ctx, store.CreateApprovalParams{
		TenantID:     frozen.TenantID,
		ResourceType: "budget",
		ResourceID:   frozen.ID,
		Action:       store.ApprovalActionBudgetOverride,
		Payload:      payload,
		TTL:          budgetOverrideTTL,
	}); err != nil {
		e.logger.Error("creating budget override approval", "error", err, "budget_id", frozen.ID)
	}

	e.audit.Log(audit.Entry{
		TenantID:     frozen.TenantID,
		Action:       "budget_frozen",
		ResourceType: "budget",
		ResourceID:   &frozen.ID,
		NewValue:     payload,
		Tags:         []string{store.TagAutomation, store.TagDataIntegrity},
	})

	if e.notifier != nil {
		if err := e.notifier.NotifyBudgetFrozen(ctx, frozen); err != nil {
			e.logger.Warn("notifying budget freeze", "error", err, "budget_id", frozen.ID)
		}
	}
}

func (e *Engine) breakerFor(b store.Budget) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[b.ID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("budget:%s", b.ID),
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Info("budget breaker state change", "breaker", name, "from", from, "to", to)
		},
	})
	e.breakers[b.ID] = cb
	return cb
}

func (e *Engine) resetBreaker(budgetID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.breakers, budgetID)
}

// nextBoundary computes the next reset_at for a budget period, advancing
// strictly past now so a long-delayed sweep still lands on a future
// boundary rather than immediately re-expiring.
func nextBoundary(from time.Time, period string) time.Time {
	var step time.Duration
	switch period {
	case store.BudgetPeriodDaily:
		step = 24 * time.Hour
	case store.BudgetPeriodWeekly:
		step = 7 * 24 * time.Hour
	case store.BudgetPeriodMonthly:
		step = 30 * 24 * time.Hour
	default:
		step = 24 * time.Hour
	}
	next := from.Add(step)
	for !next.After(time.Now()) {
		next = next.Add(step)
	}
	return next
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
