package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const auditEntryColumns = `id, tenant_id, actor_id, action, resource_type, resource_id,
	old_value, new_value, metadata, tags, received_at`

func scanAuditEntry(row pgx.Row) (AuditEntry, error) {
	var e AuditEntry
	err := row.Scan(
		&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.OldValue, &e.NewValue, &e.Metadata, &e.Tags, &e.ReceivedAt,
	)
	return e, err
}

// InsertAuditEntry appends a single entry. No method of Store updates an
// audit entry; the only removal is SweepExpiredAuditEntries' retention
// sweep. The migration itself adds no grants or triggers restricting
// writes to the table.
func (s *Store) InsertAuditEntry(ctx context.Context, dbtx DBTX, e AuditEntry) error {
	_, err := dbtx.Exec(ctx, `
		INSERT INTO audit_entries (tenant_id, actor_id, action, resource_type, resource_id,
			old_value, new_value, metadata, tags, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.TenantID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		e.OldValue, e.NewValue, e.Metadata, e.Tags, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditEntriesFilter narrows ListAuditEntries; zero values mean "any".
type ListAuditEntriesFilter struct {
	TenantID     uuid.UUID
	ResourceType string
	Action       string
	Limit        int
	Offset       int
}

// ListAuditEntries returns entries for a tenant, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, f ListAuditEntriesFilter) ([]AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+auditEntryColumns+`
		FROM audit_entries
		WHERE tenant_id = $1
		  AND ($2 = '' OR resource_type = $2)
		  AND ($3 = '' OR action = $3)
		ORDER BY received_at DESC
		LIMIT $4 OFFSET $5`,
		f.TenantID, f.ResourceType, f.Action, limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SweepExpiredAuditEntries deletes entries older than retentionDays. This is
// the one sanctioned delete path on an otherwise append-only table, run by
// the periodic retention sweep, never by request handlers.
func (s *Store) SweepExpiredAuditEntries(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_entries WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
