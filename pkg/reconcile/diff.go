package reconcile

import (
	"fmt"
	"math"

	"github.com/ordermesh/hub/internal/store"
)

// diffListings compares local listings against remote resources by
// external_id and emits a Discrepancy for each of the five kinds spec.md
// §4.5 names. It is pure and side-effect-free so the drift math can be
// tested without a database.
func diffListings(local []store.Listing, remote []RemoteResource) []store.Discrepancy {
	localByID := make(map[string]store.Listing, len(local))
	for _, l := range local {
		if l.ExternalID != nil {
			localByID[*l.ExternalID] = l
		}
	}
	remoteByID := make(map[string]RemoteResource, len(remote))
	for _, r := range remote {
		remoteByID[r.ExternalID] = r
	}

	var discrepancies []store.Discrepancy

	for id, r := range remoteByID {
		if _, ok := localByID[id]; !ok {
			discrepancies = append(discrepancies, store.Discrepancy{
				Kind:       store.DiscrepancyMissingLocal,
				Severity:   store.DiscrepancySeverityMedium,
				ExternalID: id,
				Detail:     fmt.Sprintf("remote title %q has no local listing", r.Title),
			})
		}
	}

	for id, l := range localByID {
		r, ok := remoteByID[id]
		if !ok {
			discrepancies = append(discrepancies, store.Discrepancy{
				Kind:       store.DiscrepancyMissingRemote,
				Severity:   store.DiscrepancySeverityMedium,
				ExternalID: id,
				Detail:     fmt.Sprintf("local sku %q has no remote match", l.SKU),
			})
			continue
		}

		if qtyDiff := math.Abs(float64(l.Quantity - r.Quantity)); qtyDiff > inventoryDriftThreshold {
			severity := store.DiscrepancySeverityMedium
			if qtyDiff > inventoryDriftCriticalAbove {
				severity = store.DiscrepancySeverityCritical
			}
			discrepancies = append(discrepancies, store.Discrepancy{
				Kind:        store.DiscrepancyInventoryDrift,
				Severity:    severity,
				ExternalID:  id,
				LocalValue:  float64(l.Quantity),
				RemoteValue: float64(r.Quantity),
			})
		}

		if priceDiff := math.Abs(l.Price - r.Price); priceDiff > priceDriftThreshold {
			discrepancies = append(discrepancies, store.Discrepancy{
				Kind:        store.DiscrepancyPriceDrift,
				Severity:    store.DiscrepancySeverityLow,
				ExternalID:  id,
				LocalValue:  l.Price,
				RemoteValue: r.Price,
			})
		}

		if l.Status != "" && r.Status != "" && l.Status != r.Status {
			discrepancies = append(discrepancies, store.Discrepancy{
				Kind:       store.DiscrepancyDataMismatch,
				Severity:   store.DiscrepancySeverityHigh,
				ExternalID: id,
				Detail:     fmt.Sprintf("local status %q, remote status %q", l.Status, r.Status),
			})
		}
	}

	return discrepancies
}
