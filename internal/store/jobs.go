package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const jobColumns = `id, tenant_id, store_id, type, payload, status, priority, attempts,
	max_attempts, scheduled_at, claimed_at, claimed_by, started_at, completed_at,
	last_error, result, idempotency_key, created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.TenantID, &j.StoreID, &j.Type, &j.Payload, &j.Status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.ScheduledAt, &j.ClaimedAt, &j.ClaimedBy,
		&j.StartedAt, &j.CompletedAt, &j.LastError, &j.Result, &j.IdempotencyKey,
		&j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

func scanJobs(rows pgx.Rows) ([]Job, error) {
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job rows: %w", err)
	}
	return jobs, nil
}

// EnqueueJobParams are the caller-supplied fields for a new job. EnqueueJob
// applies no defaults (a zero MaxAttempts is rejected); jobengine's
// Engine.Enqueue fills Priority 5 and MaxAttempts 3 when they are zero.
type EnqueueJobParams struct {
	TenantID       uuid.UUID
	StoreID        *uuid.UUID
	Type           string
	Payload        json.RawMessage
	Priority       int
	MaxAttempts    int
	ScheduledAt    time.Time
	IdempotencyKey string
}

// EnqueueJob inserts a job, deduplicating on (tenant_id, idempotency_key). If
// a job with the same key already exists for the tenant, the existing row is
// returned unchanged (spec.md §4.2, §8 idempotence law).
func (s *Store) EnqueueJob(ctx context.Context, p EnqueueJobParams) (Job, error) {
	if p.MaxAttempts < 1 {
		return Job{}, fmt.Errorf("%w: max_attempts must be >= 1", ErrInvalid)
	}
	if p.Priority < 0 || p.Priority > 100 {
		return Job{}, fmt.Errorf("%w: priority must be in [0, 100]", ErrInvalid)
	}
	if p.ScheduledAt.Before(time.Now().Add(-60 * time.Second)) {
		return Job{}, fmt.Errorf("%w: scheduled_at too far in the past", ErrInvalid)
	}

	query := `INSERT INTO jobs (
		tenant_id, store_id, type, payload, status, priority, attempts,
		max_attempts, scheduled_at, idempotency_key
	) VALUES ($1, $2, $3, $4, 'pending', $5, 0, $6, $7, $8)
	ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET updated_at = jobs.updated_at
	RETURNING ` + jobColumns

	row := s.pool.QueryRow(ctx, query,
		p.TenantID, p.StoreID, p.Type, p.Payload, p.Priority, p.MaxAttempts,
		p.ScheduledAt, p.IdempotencyKey,
	)
	return scanJob(row)
}

// ClaimJobs atomically claims up to limit pending (or lease-expired
// claimed/running) jobs for a tenant, ordered by priority then scheduled_at,
// and marks them claimed by workerID. Uses FOR UPDATE SKIP LOCKED so
// concurrent workers never double-claim the same row.
func (s *Store) ClaimJobs(ctx context.Context, tenantID uuid.UUID, workerID string, limit int, leaseTTL time.Duration) ([]Job, error) {
	var claimed []Job

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		now := time.Now()
		leaseExpiry := now.Add(-leaseTTL)

		rows, err := tx.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE tenant_id = $1
			  AND (
			    (status = 'pending' AND scheduled_at <= $2)
			    OR (status IN ('claimed', 'running') AND claimed_at < $3)
			  )
			ORDER BY priority ASC, scheduled_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED`,
			tenantID, now, leaseExpiry, limit,
		)
		if err != nil {
			return fmt.Errorf("claiming jobs: %w", err)
		}

		candidates, err := scanJobs(rows)
		if err != nil {
			return err
		}

		for _, j := range candidates {
			row := tx.QueryRow(ctx, `
				UPDATE jobs
				SET status = 'claimed', claimed_by = $2, claimed_at = $3, updated_at = $3
				WHERE id = $1
				RETURNING `+jobColumns,
				j.ID, workerID, now,
			)
			updated, err := scanJob(row)
			if err != nil {
				return fmt.Errorf("marking job %s claimed: %w", j.ID, err)
			}
			claimed = append(claimed, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimAnyTenantJobs is ClaimJobs without a tenant filter, for the worker
// pool's global poll loop. Ordering is still priority then scheduled_at,
// which is a strictly stronger guarantee than spec.md §5's "within a
// tenant" ordering requirement.
func (s *Store) ClaimAnyTenantJobs(ctx context.Context, workerID string, limit int, leaseTTL time.Duration) ([]Job, error) {
	var claimed []Job

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		now := time.Now()
		leaseExpiry := now.Add(-leaseTTL)

		rows, err := tx.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE (status = 'pending' AND scheduled_at <= $1)
			   OR (status IN ('claimed', 'running') AND claimed_at < $2)
			ORDER BY priority ASC, scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED`,
			now, leaseExpiry, limit,
		)
		if err != nil {
			return fmt.Errorf("claiming jobs: %w", err)
		}

		candidates, err := scanJobs(rows)
		if err != nil {
			return err
		}

		for _, j := range candidates {
			row := tx.QueryRow(ctx, `
				UPDATE jobs
				SET status = 'claimed', claimed_by = $2, claimed_at = $3, updated_at = $3
				WHERE id = $1
				RETURNING `+jobColumns,
				j.ID, workerID, now,
			)
			updated, err := scanJob(row)
			if err != nil {
				return fmt.Errorf("marking job %s claimed: %w", j.ID, err)
			}
			claimed = append(claimed, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// StartJob transitions claimed -> running, check-and-set on claimed_by so a
// superseded worker (lease expired, re-claimed by another worker) loses
// silently instead of corrupting state.
func (s *Store) StartJob(ctx context.Context, jobID uuid.UUID, workerID string) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'running', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'claimed' AND claimed_by = $2
		RETURNING `+jobColumns,
		jobID, workerID,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("starting job: %w", err)
	}
	return j, nil
}

// CompleteJobSuccess transitions running -> completed.
func (s *Store) CompleteJobSuccess(ctx context.Context, jobID uuid.UUID, workerID string, result json.RawMessage) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'completed', result = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'running' AND claimed_by = $2
		RETURNING `+jobColumns,
		jobID, workerID, result,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("completing job: %w", err)
	}
	return j, nil
}

// RescheduleJobForRetry transitions running -> pending with a new
// scheduled_at and incremented attempts, clearing the claim.
func (s *Store) RescheduleJobForRetry(ctx context.Context, jobID uuid.UUID, workerID string, scheduledAt time.Time, lastError string) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'pending', attempts = attempts + 1, scheduled_at = $3,
		    last_error = $4, claimed_by = NULL, claimed_at = NULL, started_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'running' AND claimed_by = $2
		RETURNING `+jobColumns,
		jobID, workerID, scheduledAt, lastError,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("rescheduling job: %w", err)
	}
	return j, nil
}

// RescheduleJobRateLimited transitions running -> pending with a new
// scheduled_at, clearing the claim but leaving attempts untouched (spec.md
// §7: RateLimited "do not increment attempts").
func (s *Store) RescheduleJobRateLimited(ctx context.Context, jobID uuid.UUID, workerID string, scheduledAt time.Time, lastError string) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'pending', scheduled_at = $3,
		    last_error = $4, claimed_by = NULL, claimed_at = NULL, started_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'running' AND claimed_by = $2
		RETURNING `+jobColumns,
		jobID, workerID, scheduledAt, lastError,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("rescheduling rate-limited job: %w", err)
	}
	return j, nil
}

// FailJobPermanently transitions running -> failed, incrementing attempts.
func (s *Store) FailJobPermanently(ctx context.Context, jobID uuid.UUID, workerID string, lastError string) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'failed', attempts = attempts + 1, last_error = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'running' AND claimed_by = $2
		RETURNING `+jobColumns,
		jobID, workerID, lastError,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("failing job: %w", err)
	}
	return j, nil
}

// CancelJob transitions pending|claimed -> cancelled.
func (s *Store) CancelJob(ctx context.Context, tenantID, jobID uuid.UUID) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'cancelled', completed_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status IN ('pending', 'claimed')
		RETURNING `+jobColumns,
		jobID, tenantID,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("cancelling job: %w", err)
	}
	return j, nil
}

// RetryJob resets a failed job back to pending for a fresh attempt cycle
// (operator-initiated retry, distinct from the engine's automatic retry).
func (s *Store) RetryJob(ctx context.Context, tenantID, jobID uuid.UUID) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'pending', attempts = 0, last_error = NULL, scheduled_at = now(),
		    claimed_by = NULL, claimed_at = NULL, started_at = NULL, completed_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'failed'
		RETURNING `+jobColumns,
		jobID, tenantID,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	if err != nil {
		return Job{}, fmt.Errorf("retrying job: %w", err)
	}
	return j, nil
}

// GetJob returns a single job by id, scoped to the tenant.
func (s *Store) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND tenant_id = $2`, jobID, tenantID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("getting job: %w", err)
	}
	return j, nil
}

// ListJobsFilter narrows ListJobs results; zero values mean "any".
type ListJobsFilter struct {
	TenantID uuid.UUID
	StoreID  *uuid.UUID
	Status   string
	Limit    int
	Offset   int
}

// ListJobs returns jobs for a tenant, optionally filtered by store and status.
func (s *Store) ListJobs(ctx context.Context, f ListJobsFilter) ([]Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1
		  AND ($2::uuid IS NULL OR store_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		f.TenantID, f.StoreID, f.Status, limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return scanJobs(rows)
}

// IsUniqueViolation reports whether err is a Postgres unique_violation,
// surfaced for callers that want a distinct code path from a generic error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
