package scheduler

import (
	"fmt"
	"time"

	"github.com/ordermesh/hub/internal/config"
)

// Config is the Scheduler's runtime configuration, parsed from the
// string-duration fields of the application config.
type Config struct {
	ReconcileInterval     time.Duration
	BudgetCheckInterval   time.Duration
	ApprovalSweepInterval time.Duration
	AuditSweepInterval    time.Duration
	AuditRetentionDays    int
}

// NewConfig parses the Scheduler fields out of the application config.
func NewConfig(cfg *config.Config) (Config, error) {
	reconcile, err := time.ParseDuration(cfg.ReconcileInterval)
	if err != nil {
		return Config{}, fmt.Errorf("parsing RECONCILE_INTERVAL: %w", err)
	}
	budgetCheck, err := time.ParseDuration(cfg.BudgetCheckInterval)
	if err != nil {
		return Config{}, fmt.Errorf("parsing BUDGET_CHECK_INTERVAL: %w", err)
	}
	approvalSweep, err := time.ParseDuration(cfg.ApprovalSweepInterval)
	if err != nil {
		return Config{}, fmt.Errorf("parsing APPROVAL_SWEEP_INTERVAL: %w", err)
	}
	auditSweep, err := time.ParseDuration(cfg.AuditSweepInterval)
	if err != nil {
		return Config{}, fmt.Errorf("parsing AUDIT_SWEEP_INTERVAL: %w", err)
	}

	return Config{
		ReconcileInterval:     reconcile,
		BudgetCheckInterval:   budgetCheck,
		ApprovalSweepInterval: approvalSweep,
		AuditSweepInterval:    auditSweep,
		AuditRetentionDays:    cfg.AuditRetentionDays,
	}, nil
}
