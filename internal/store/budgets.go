package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const budgetColumns = `id, tenant_id, store_id, type, period, "limit", current, reset_at, is_frozen`

func scanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	err := row.Scan(&b.ID, &b.TenantID, &b.StoreID, &b.Type, &b.Period, &b.Limit, &b.Current, &b.ResetAt, &b.IsFrozen)
	return b, err
}

func scanBudgets(rows pgx.Rows) ([]Budget, error) {
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning budget row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating budget rows: %w", err)
	}
	return out, nil
}

// GetBudget returns a single budget scoped to the tenant.
func (s *Store) GetBudget(ctx context.Context, tenantID, id uuid.UUID) (Budget, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("getting budget: %w", err)
	}
	return b, nil
}

// ListBudgets returns every budget for a tenant.
func (s *Store) ListBudgets(ctx context.Context, tenantID uuid.UUID) ([]Budget, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE tenant_id = $1 ORDER BY type`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}
	return scanBudgets(rows)
}

// ListNonFrozenBudgetsAtOrOverLimit returns every budget across all tenants
// that has breached its limit but is not yet frozen, for the periodic budget
// check job to process.
func (s *Store) ListNonFrozenBudgetsAtOrOverLimit(ctx context.Context) ([]Budget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+budgetColumns+` FROM budgets
		WHERE NOT is_frozen AND current >= "limit"`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing breached budgets: %w", err)
	}
	return scanBudgets(rows)
}

// GetBudgetByStoreAndType returns the budget scoped to a specific store and
// type, used by the gateway to gate and meter outbound calls (spec.md §4.6).
// Returns ErrNotFound when no such budget is configured for the store, which
// callers treat as "nothing to gate" rather than a failure.
func (s *Store) GetBudgetByStoreAndType(ctx context.Context, tenantID, storeID uuid.UUID, budgetType string) (Budget, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+budgetColumns+` FROM budgets
		WHERE tenant_id = $1 AND store_id = $2 AND type = $3`,
		tenantID, storeID, budgetType,
	)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("getting budget by store and type: %w", err)
	}
	return b, nil
}

// IncrementBudget atomically adds delta to current. Readers may observe
// stale values under concurrent increments; that is acceptable per spec.md
// §5 (the breaker errs safe, not exact).
func (s *Store) IncrementBudget(ctx context.Context, id uuid.UUID, delta float64) (Budget, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE budgets SET current = current + $2
		WHERE id = $1
		RETURNING `+budgetColumns,
		id, delta,
	)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("incrementing budget: %w", err)
	}
	return b, nil
}

// FreezeBudget sets is_frozen = true exactly once per breach epoch: the
// WHERE clause only matches a currently-unfrozen row, so a racing second
// caller gets ErrConflict and must not emit a duplicate approval.
func (s *Store) FreezeBudget(ctx context.Context, id uuid.UUID) (Budget, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE budgets SET is_frozen = true
		WHERE id = $1 AND NOT is_frozen
		RETURNING `+budgetColumns,
		id,
	)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrConflict
	}
	if err != nil {
		return Budget{}, fmt.Errorf("freezing budget: %w", err)
	}
	return b, nil
}

// UnfreezeBudget requires an explicit operator action; period resets never
// clear is_frozen on their own (spec.md §9 Open Question (c)).
func (s *Store) UnfreezeBudget(ctx context.Context, tenantID, id uuid.UUID) (Budget, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE budgets SET is_frozen = false
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+budgetColumns,
		id, tenantID,
	)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("unfreezing budget: %w", err)
	}
	return b, nil
}

// ResetBudgetPeriod zeroes current and advances reset_at to nextBoundary,
// leaving is_frozen untouched.
func (s *Store) ResetBudgetPeriod(ctx context.Context, id uuid.UUID, nextBoundary time.Time) (Budget, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE budgets SET current = 0, reset_at = $2
		WHERE id = $1
		RETURNING `+budgetColumns,
		id, nextBoundary,
	)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("resetting budget period: %w", err)
	}
	return b, nil
}

// ListBudgetsPastResetBoundary returns budgets whose reset_at has passed,
// for the periodic budget check job to reset.
func (s *Store) ListBudgetsPastResetBoundary(ctx context.Context) ([]Budget, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE reset_at < now()`)
	if err != nil {
		return nil, fmt.Errorf("listing budgets past reset boundary: %w", err)
	}
	return scanBudgets(rows)
}
