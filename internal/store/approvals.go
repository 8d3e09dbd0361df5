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

const approvalColumns = `id, tenant_id, resource_type, resource_id, action, payload,
	requested_by, status, expires_at, decided_at, decided_by, decision_reason, created_at`

func scanApproval(row pgx.Row) (Approval, error) {
	var a Approval
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ResourceType, &a.ResourceID, &a.Action, &a.Payload,
		&a.RequestedBy, &a.Status, &a.ExpiresAt, &a.DecidedAt, &a.DecidedBy,
		&a.DecisionReason, &a.CreatedAt,
	)
	return a, err
}

func scanApprovals(rows pgx.Rows) ([]Approval, error) {
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning approval row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating approval rows: %w", err)
	}
	return out, nil
}

// CreateApprovalParams describes a new pending approval.
type CreateApprovalParams struct {
	TenantID     uuid.UUID
	ResourceType string
	ResourceID   uuid.UUID
	Action       string
	Payload      json.RawMessage
	RequestedBy  *string
	TTL          time.Duration
}

// CreateApproval inserts a pending approval with expires_at = now + TTL.
func (s *Store) CreateApproval(ctx context.Context, p CreateApprovalParams) (Approval, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO approvals (tenant_id, resource_type, resource_id, action, payload,
			requested_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING `+approvalColumns,
		p.TenantID, p.ResourceType, p.ResourceID, p.Action, p.Payload, p.RequestedBy,
		time.Now().Add(p.TTL),
	)
	a, err := scanApproval(row)
	if err != nil {
		return Approval{}, fmt.Errorf("creating approval: %w", err)
	}
	return a, nil
}

// DecideApproval transitions pending -> approved|rejected.
func (s *Store) DecideApproval(ctx context.Context, tenantID, id uuid.UUID, approved bool, decidedBy string, reason *string) (Approval, error) {
	status := ApprovalStatusRejected
	if approved {
		status = ApprovalStatusApproved
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE approvals
		SET status = $3, decided_at = now(), decided_by = $4, decision_reason = $5
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
		RETURNING `+approvalColumns,
		id, tenantID, status, decidedBy, reason,
	)
	a, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Approval{}, ErrConflict
	}
	if err != nil {
		return Approval{}, fmt.Errorf("deciding approval: %w", err)
	}
	return a, nil
}

// ExpirePendingApprovals sweeps pending approvals whose expires_at has
// passed, transitioning them to expired. Returns the number expired.
func (s *Store) ExpirePendingApprovals(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approvals SET status = 'expired'
		WHERE status = 'pending' AND expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("expiring approvals: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetApproval returns a single approval scoped to the tenant.
func (s *Store) GetApproval(ctx context.Context, tenantID, id uuid.UUID) (Approval, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	a, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Approval{}, ErrNotFound
	}
	if err != nil {
		return Approval{}, fmt.Errorf("getting approval: %w", err)
	}
	return a, nil
}

// ListPendingApprovals returns pending approvals for a tenant, most recent first.
func (s *Store) ListPendingApprovals(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Approval, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE tenant_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending approvals: %w", err)
	}
	return scanApprovals(rows)
}
