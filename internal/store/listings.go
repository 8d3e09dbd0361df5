package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const listingColumns = `id, tenant_id, store_id, external_id, sku, title, quantity, price, status, updated_at`

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.TenantID, &l.StoreID, &l.ExternalID, &l.SKU, &l.Title, &l.Quantity, &l.Price, &l.Status, &l.UpdatedAt)
	return l, err
}

// ListListingsByStore returns every local listing for a store, the input to
// the Reconciliation Engine's local-side scan (spec.md §4.5 step 1).
func (s *Store) ListListingsByStore(ctx context.Context, storeID uuid.UUID) ([]Listing, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+listingColumns+` FROM listings WHERE store_id = $1`, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertListing creates or updates a listing keyed by (store_id, external_id)
// once a remote resource has been matched to it.
func (s *Store) UpsertListing(ctx context.Context, l Listing) (Listing, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO listings (tenant_id, store_id, external_id, sku, title, quantity, price, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (store_id, external_id) WHERE external_id IS NOT NULL DO UPDATE SET
			sku = EXCLUDED.sku, title = EXCLUDED.title, quantity = EXCLUDED.quantity,
			price = EXCLUDED.price, status = EXCLUDED.status, updated_at = now()
		RETURNING `+listingColumns,
		l.TenantID, l.StoreID, l.ExternalID, l.SKU, l.Title, l.Quantity, l.Price, l.Status,
	)
	out, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("upserting listing: %w", err)
	}
	return out, nil
}

// GetListingByExternalID looks up a listing by its remote id within a store.
func (s *Store) GetListingByExternalID(ctx context.Context, storeID uuid.UUID, externalID string) (Listing, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE store_id = $1 AND external_id = $2`,
		storeID, externalID,
	)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, fmt.Errorf("getting listing by external id: %w", err)
	}
	return l, nil
}
