package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const platformStoreColumns = `id, tenant_id, platform, credentials, rate_limit_state, rate_limit_version, last_synced_at, is_active`

func scanPlatformStore(row pgx.Row) (PlatformStore, error) {
	var p PlatformStore
	err := row.Scan(&p.ID, &p.TenantID, &p.Platform, &p.Credentials, &p.RateLimitState, &p.RateLimitVersion, &p.LastSyncedAt, &p.IsActive)
	return p, err
}

// GetPlatformStore returns a store connection scoped to the tenant.
func (s *Store) GetPlatformStore(ctx context.Context, tenantID, id uuid.UUID) (PlatformStore, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+platformStoreColumns+` FROM stores WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	p, err := scanPlatformStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlatformStore{}, ErrNotFound
	}
	if err != nil {
		return PlatformStore{}, fmt.Errorf("getting store: %w", err)
	}
	return p, nil
}

// GetPlatformStoreByID returns a store connection by id alone, for callers
// (like the webhook intake, keyed only by store_id in the URL) that have not
// yet resolved a tenant context.
func (s *Store) GetPlatformStoreByID(ctx context.Context, id uuid.UUID) (PlatformStore, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+platformStoreColumns+` FROM stores WHERE id = $1`, id)
	p, err := scanPlatformStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlatformStore{}, ErrNotFound
	}
	if err != nil {
		return PlatformStore{}, fmt.Errorf("getting store by id: %w", err)
	}
	return p, nil
}

// ListActivePlatformStores returns every active store across all tenants, for
// the scheduler to fan reconciliation/rate-limit-refill work out over.
func (s *Store) ListActivePlatformStores(ctx context.Context) ([]PlatformStore, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+platformStoreColumns+` FROM stores WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("listing active stores: %w", err)
	}
	defer rows.Close()

	var out []PlatformStore
	for rows.Next() {
		p, err := scanPlatformStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning store row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateRateLimitState persists the Platform Gateway's owned bucket state.
// Callers must serialize this per store (optimistic retry or per-store
// mutex, per spec.md §4.3).
func (s *Store) UpdateRateLimitState(ctx context.Context, id uuid.UUID, state json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `UPDATE stores SET rate_limit_state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("updating rate limit state: %w", err)
	}
	return nil
}

// UpdateRateLimitStateCAS applies a read-modify-write of rate_limit_state
// guarded by rate_limit_version, so concurrent gateway calls against the
// same store serialize via optimistic retry instead of a per-store mutex
// (spec.md §4.3 / §5). Returns ErrConflict if expectedVersion is stale.
func (s *Store) UpdateRateLimitStateCAS(ctx context.Context, id uuid.UUID, expectedVersion int, state json.RawMessage) (PlatformStore, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE stores
		SET rate_limit_state = $3, rate_limit_version = rate_limit_version + 1
		WHERE id = $1 AND rate_limit_version = $2
		RETURNING `+platformStoreColumns,
		id, expectedVersion, state,
	)
	p, err := scanPlatformStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlatformStore{}, ErrConflict
	}
	if err != nil {
		return PlatformStore{}, fmt.Errorf("updating rate limit state (cas): %w", err)
	}
	return p, nil
}

// UpdateCredentials persists a freshly sealed credential blob, used after an
// OAuth2 refresh so the next call skips the round trip.
func (s *Store) UpdateCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE stores SET credentials = $2 WHERE id = $1`, id, sealed)
	if err != nil {
		return fmt.Errorf("updating credentials: %w", err)
	}
	return nil
}

// MarkStoreSynced updates last_synced_at after a reconciliation pass.
func (s *Store) MarkStoreSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE stores SET last_synced_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("marking store synced: %w", err)
	}
	return nil
}

// DeactivateStore marks a store inactive, used when the gateway sees
// Unauthorized with a credential cause (spec.md §7).
func (s *Store) DeactivateStore(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE stores SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating store: %w", err)
	}
	return nil
}
