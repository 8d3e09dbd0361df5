// Package reconcile implements the Reconciliation Engine (spec.md §4.5): a
// periodic drift scan comparing local listings against a platform's remote
// resources, emitting discrepancy records and gated approvals. Reconciliation
// never auto-corrects; it only reports.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/audit"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/internal/telemetry"
	"github.com/ordermesh/hub/pkg/gateway"
)

const (
	inventoryDriftThreshold     = 5
	inventoryDriftCriticalAbove = 50
	priceDriftThreshold         = 0.01
	resolveDiscrepancyTTL       = 7 * 24 * time.Hour
)

// RemoteLister fetches a platform's remote resources for a store via the
// Platform Gateway, which applies its rate limits and cost accounting.
// Implemented per-platform; the engine itself is platform-agnostic. The
// built-in listers each make a single request and do not page through
// further results.
type RemoteLister func(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error)

// RemoteResource is the normalized shape a RemoteLister reduces a platform
// response to.
type RemoteResource struct {
	ExternalID string
	Title      string
	Quantity   int
	Price      float64
	Status     string
}

// Engine runs reconciliation passes for stores.
type Engine struct {
	store   *store.Store
	gateway *gateway.Gateway
	audit   *audit.Writer
	logger  *slog.Logger
	listers map[string]RemoteLister
}

// New creates a reconciliation Engine.
func New(s *store.Store, gw *gateway.Gateway, auditWriter *audit.Writer, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		gateway: gw,
		audit:   auditWriter,
		logger:  logger,
		listers: make(map[string]RemoteLister),
	}
}

// RegisterLister associates a platform with the function that fetches its
// remote resources.
func (e *Engine) RegisterLister(platform string, l RemoteLister) {
	e.listers[platform] = l
}

// Result summarizes one reconciliation pass.
type Result struct {
	StoreID       uuid.UUID
	Discrepancies []store.Discrepancy
	CheckedLocal  int
	CheckedRemote int
}

// Run executes the 5-step reconciliation algorithm (spec.md §4.5) for one
// store and returns the discrepancies found. It is side-effect-free on
// Listing/remote state — the only writes are Store.last_synced_at, an
// audit entry, and (for high/critical findings) a pending Approval.
func (e *Engine) Run(ctx context.Context, storeID uuid.UUID) (Result, error) {
	ps, err := e.store.GetPlatformStoreByID(ctx, storeID)
	if err != nil {
		return Result{}, fmt.Errorf("loading store: %w", err)
	}

	lister, ok := e.listers[ps.Platform]
	if !ok {
		return Result{}, fmt.Errorf("reconcile: no remote lister registered for platform %q", ps.Platform)
	}

	local, err := e.store.ListListingsByStore(ctx, storeID)
	if err != nil {
		return Result{}, fmt.Errorf("listing local listings: %w", err)
	}

	remote, err := lister(ctx, e.gateway, storeID)
	if err != nil {
		return Result{}, fmt.Errorf("listing remote resources: %w", err)
	}

	discrepancies := diffListings(local, remote)

	telemetry.ReconciliationRunsTotal.WithLabelValues(ps.Platform).Inc()
	for _, d := range discrepancies {
		telemetry.ReconciliationDiscrepanciesTotal.WithLabelValues(d.Kind, d.Severity).Inc()
	}

	if severe := filterSevere(discrepancies); len(severe) > 0 {
		payload, _ := json.Marshal(map[string]any{"store_id": storeID, "discrepancies": severe})
		if _, err := e.store.CreateApproval(ctx, store.CreateApprovalParams{
			TenantID:     ps.TenantID,
			ResourceType: "store",
			ResourceID:   storeID,
			Action:       store.ApprovalActionResolveDiscrepancy,
			Payload:      payload,
			TTL:          resolveDiscrepancyTTL,
		}); err != nil {
			e.logger.Error("creating discrepancy approval", "error", err, "store_id", storeID)
		}
	}

	now := time.Now()
	if err := e.store.MarkStoreSynced(ctx, storeID, now); err != nil {
		e.logger.Error("marking store synced", "error", err, "store_id", storeID)
	}

	summary, _ := json.Marshal(map[string]any{
		"checked_local":  len(local),
		"checked_remote": len(remote),
		"discrepancies":  len(discrepancies),
	})
	e.audit.Log(audit.Entry{
		TenantID:     ps.TenantID,
		Action:       "reconciliation_run",
		ResourceType: "store",
		ResourceID:   &storeID,
		NewValue:     summary,
		Tags:         []string{store.TagReconciliation},
	})

	return Result{
		StoreID:       storeID,
		Discrepancies: discrepancies,
		CheckedLocal:  len(local),
		CheckedRemote: len(remote),
	}, nil
}

func filterSevere(discrepancies []store.Discrepancy) []store.Discrepancy {
	var out []store.Discrepancy
	for _, d := range discrepancies {
		if d.Severity == store.DiscrepancySeverityHigh || d.Severity == store.DiscrepancySeverityCritical {
			out = append(out, d)
		}
	}
	return out
}
