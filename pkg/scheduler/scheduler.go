// Package scheduler implements the Scheduler/Timer (spec.md §5's periodic
// triggers): reconciliation passes, the budget check and period reset,
// the approval expiry sweep, and the audit retention sweep, each on its
// own ticker. Each completed reconciliation pass also publishes a
// change-notification event on a per-tenant Redis channel for the SSE
// endpoint to relay; the other ticks publish nothing.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/approval"
	"github.com/ordermesh/hub/pkg/reconcile"
)

// EventChannel returns the per-tenant pub/sub channel SSE subscribers read.
func EventChannel(tenantID uuid.UUID) string {
	return fmt.Sprintf("ordermesh:tenant:%s:events", tenantID)
}

// Engine drives every periodic background pass.
type Engine struct {
	store     *store.Store
	reconcile *reconcile.Engine
	approval  *approval.Engine
	rdb       *redis.Client
	logger    *slog.Logger
	cfg       Config
}

// New creates a scheduler Engine.
func New(s *store.Store, reconcileEngine *reconcile.Engine, approvalEngine *approval.Engine, rdb *redis.Client, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		store:     s,
		reconcile: reconcileEngine,
		approval:  approvalEngine,
		rdb:       rdb,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run starts every ticker loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("scheduler started",
		"reconcile_interval", e.cfg.ReconcileInterval,
		"budget_check_interval", e.cfg.BudgetCheckInterval,
		"approval_sweep_interval", e.cfg.ApprovalSweepInterval,
		"audit_sweep_interval", e.cfg.AuditSweepInterval,
	)

	reconcileTicker := time.NewTicker(e.cfg.ReconcileInterval)
	budgetTicker := time.NewTicker(e.cfg.BudgetCheckInterval)
	approvalTicker := time.NewTicker(e.cfg.ApprovalSweepInterval)
	auditTicker := time.NewTicker(e.cfg.AuditSweepInterval)
	defer reconcileTicker.Stop()
	defer budgetTicker.Stop()
	defer approvalTicker.Stop()
	defer auditTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("scheduler stopped")
			return nil
		case <-reconcileTicker.C:
			e.tickReconcile(ctx)
		case <-budgetTicker.C:
			e.tickBudgets(ctx)
		case <-approvalTicker.C:
			e.tickApprovals(ctx)
		case <-auditTicker.C:
			e.tickAuditSweep(ctx)
		}
	}
}

// tickReconcile runs a reconciliation pass for every active store.
func (e *Engine) tickReconcile(ctx context.Context) {
	stores, err := e.store.ListActivePlatformStores(ctx)
	if err != nil {
		e.logger.Error("listing active stores for reconciliation", "error", err)
		return
	}
	for _, ps := range stores {
		e.TriggerReconcile(ctx, ps.ID)
	}
}

// TriggerReconcile runs a single store's reconciliation pass on demand
// (the periodic tick above, or an operator-triggered dry-run endpoint).
func (e *Engine) TriggerReconcile(ctx context.Context, storeID uuid.UUID) {
	result, err := e.reconcile.Run(ctx, storeID)
	if err != nil {
		e.logger.Error("reconciliation pass failed", "error", err, "store_id", storeID)
		return
	}
	ps, err := e.store.GetPlatformStoreByID(ctx, storeID)
	if err != nil {
		return
	}
	e.publish(ctx, ps.TenantID, "reconciliation_completed", map[string]any{
		"store_id":      storeID,
		"discrepancies": len(result.Discrepancies),
	})
}

func (e *Engine) tickBudgets(ctx context.Context) {
	if err := e.approval.CheckBudgets(ctx); err != nil {
		e.logger.Error("checking budgets", "error", err)
	}
	if err := e.approval.ResetBudgetPeriods(ctx); err != nil {
		e.logger.Error("resetting budget periods", "error", err)
	}
}

func (e *Engine) tickApprovals(ctx context.Context) {
	n, err := e.approval.ExpireSweep(ctx)
	if err != nil {
		e.logger.Error("sweeping expired approvals", "error", err)
		return
	}
	if n > 0 {
		e.logger.Info("expired pending approvals", "count", n)
	}
}

func (e *Engine) tickAuditSweep(ctx context.Context) {
	n, err := e.store.SweepExpiredAuditEntries(ctx, e.cfg.AuditRetentionDays)
	if err != nil {
		e.logger.Error("sweeping expired audit entries", "error", err)
		return
	}
	if n > 0 {
		e.logger.Info("swept expired audit entries", "count", n)
	}
}

// publish best-effort notifies a tenant's SSE subscribers of a change. A
// publish failure never fails the underlying operation it describes —
// pub/sub is a convenience channel, not a durable event log.
func (e *Engine) publish(ctx context.Context, tenantID uuid.UUID, kind string, detail map[string]any) {
	detail["type"] = kind
	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := e.rdb.Publish(ctx, EventChannel(tenantID), payload).Err(); err != nil {
		e.logger.Warn("publishing tenant event", "error", err, "tenant_id", tenantID, "kind", kind)
	}
}
