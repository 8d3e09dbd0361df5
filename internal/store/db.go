package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every method below
// can run either directly against the pool or inside a caller-supplied
// transaction (e.g. a job state transition and its audit entry committed
// together).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the persistence layer: durable storage for jobs, webhook events,
// approvals, budgets, stores, and the audit log, keyed by tenant. It owns no
// business rules beyond the invariants spec.md §3/§4.1 assign to
// Persistence — state machine transitions live in the owning package
// (pkg/jobengine, pkg/approval, ...) and call through these methods.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers that need to start their own
// transaction spanning more than one Store method (e.g. the Job Engine's
// claim-then-transition sequence).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error (including a panic, which is re-raised after
// rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}
