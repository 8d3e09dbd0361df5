package scheduler

import (
	"testing"

	"github.com/ordermesh/hub/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		ReconcileInterval:     "1h",
		BudgetCheckInterval:   "5m",
		ApprovalSweepInterval: "1m",
		AuditSweepInterval:    "24h",
		AuditRetentionDays:    90,
	}
}

func TestNewConfig_ParsesDurations(t *testing.T) {
	got, err := NewConfig(validConfig())
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if got.AuditRetentionDays != 90 {
		t.Errorf("AuditRetentionDays = %d, want 90", got.AuditRetentionDays)
	}
}

func TestNewConfig_InvalidReconcileIntervalErrors(t *testing.T) {
	cfg := validConfig()
	cfg.ReconcileInterval = "not-a-duration"
	if _, err := NewConfig(cfg); err == nil {
		t.Fatal("expected an error for an invalid RECONCILE_INTERVAL")
	}
}

func TestNewConfig_InvalidBudgetCheckIntervalErrors(t *testing.T) {
	cfg := validConfig()
	cfg.BudgetCheckInterval = "not-a-duration"
	if _, err := NewConfig(cfg); err == nil {
		t.Fatal("expected an error for an invalid BUDGET_CHECK_INTERVAL")
	}
}
