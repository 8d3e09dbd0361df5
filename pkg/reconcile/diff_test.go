package reconcile

import (
	"testing"

	"github.com/ordermesh/hub/internal/store"
)

func extID(s string) *string { return &s }

func TestDiffListings_MissingLocal(t *testing.T) {
	remote := []RemoteResource{{ExternalID: "ext-1", Title: "Widget"}}
	got := diffListings(nil, remote)
	if len(got) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(got))
	}
	if got[0].Kind != store.DiscrepancyMissingLocal {
		t.Errorf("kind = %q, want %q", got[0].Kind, store.DiscrepancyMissingLocal)
	}
	if got[0].Severity != store.DiscrepancySeverityMedium {
		t.Errorf("severity = %q, want %q", got[0].Severity, store.DiscrepancySeverityMedium)
	}
}

func TestDiffListings_MissingRemote(t *testing.T) {
	local := []store.Listing{{ExternalID: extID("ext-1"), SKU: "SKU-1"}}
	got := diffListings(local, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(got))
	}
	if got[0].Kind != store.DiscrepancyMissingRemote {
		t.Errorf("kind = %q, want %q", got[0].Kind, store.DiscrepancyMissingRemote)
	}
}

func TestDiffListings_NoExternalIDIsIgnoredNotMissingRemote(t *testing.T) {
	local := []store.Listing{{ExternalID: nil, SKU: "SKU-1"}}
	got := diffListings(local, nil)
	if len(got) != 0 {
		t.Fatalf("expected 0 discrepancies for listing with no external id, got %d", len(got))
	}
}

func TestDiffListings_InventoryDriftBoundary(t *testing.T) {
	cases := []struct {
		name         string
		localQty     int
		remoteQty    int
		wantDrift    bool
		wantSeverity string
	}{
		{"exactly at threshold is not drift", 10, 5, false, ""},
		{"one over threshold is medium", 10, 4, true, store.DiscrepancySeverityMedium},
		{"exactly at critical is medium", 60, 10, true, store.DiscrepancySeverityMedium},
		{"one over critical is critical", 61, 10, true, store.DiscrepancySeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := []store.Listing{{ExternalID: extID("ext-1"), Quantity: tc.localQty}}
			remote := []RemoteResource{{ExternalID: "ext-1", Quantity: tc.remoteQty}}
			got := diffListings(local, remote)

			var found *store.Discrepancy
			for i := range got {
				if got[i].Kind == store.DiscrepancyInventoryDrift {
					found = &got[i]
				}
			}
			if tc.wantDrift && found == nil {
				t.Fatalf("expected inventory drift, found none in %+v", got)
			}
			if !tc.wantDrift && found != nil {
				t.Fatalf("expected no inventory drift, found %+v", found)
			}
			if tc.wantDrift && found.Severity != tc.wantSeverity {
				t.Errorf("severity = %q, want %q", found.Severity, tc.wantSeverity)
			}
		})
	}
}

func TestDiffListings_PriceDriftBoundary(t *testing.T) {
	cases := []struct {
		name      string
		local     float64
		remote    float64
		wantDrift bool
	}{
		{"exactly at threshold is not drift", 10.00, 9.99, false},
		{"over threshold is drift", 10.00, 9.98, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := []store.Listing{{ExternalID: extID("ext-1"), Price: tc.local}}
			remote := []RemoteResource{{ExternalID: "ext-1", Price: tc.remote}}
			got := diffListings(local, remote)

			var found bool
			for _, d := range got {
				if d.Kind == store.DiscrepancyPriceDrift {
					found = true
				}
			}
			if found != tc.wantDrift {
				t.Errorf("price drift found = %v, want %v", found, tc.wantDrift)
			}
		})
	}
}

func TestDiffListings_DataMismatchOnStatus(t *testing.T) {
	local := []store.Listing{{ExternalID: extID("ext-1"), Status: "active"}}
	remote := []RemoteResource{{ExternalID: "ext-1", Status: "archived"}}
	got := diffListings(local, remote)

	var found *store.Discrepancy
	for i := range got {
		if got[i].Kind == store.DiscrepancyDataMismatch {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatalf("expected data mismatch discrepancy, got %+v", got)
	}
	if found.Severity != store.DiscrepancySeverityHigh {
		t.Errorf("severity = %q, want %q", found.Severity, store.DiscrepancySeverityHigh)
	}
}

func TestDiffListings_EmptyStatusSkipsMismatchCheck(t *testing.T) {
	local := []store.Listing{{ExternalID: extID("ext-1"), Status: ""}}
	remote := []RemoteResource{{ExternalID: "ext-1", Status: "archived"}}
	got := diffListings(local, remote)
	for _, d := range got {
		if d.Kind == store.DiscrepancyDataMismatch {
			t.Fatalf("did not expect data mismatch when local status is empty, got %+v", got)
		}
	}
}

func TestDiffListings_MatchingListingsProduceNoDiscrepancies(t *testing.T) {
	local := []store.Listing{{ExternalID: extID("ext-1"), SKU: "SKU-1", Quantity: 10, Price: 9.99, Status: "active"}}
	remote := []RemoteResource{{ExternalID: "ext-1", Title: "Widget", Quantity: 10, Price: 9.99, Status: "active"}}
	got := diffListings(local, remote)
	if len(got) != 0 {
		t.Fatalf("expected no discrepancies for matching listings, got %+v", got)
	}
}

func TestFilterSevere(t *testing.T) {
	discrepancies := []store.Discrepancy{
		{Kind: store.DiscrepancyPriceDrift, Severity: store.DiscrepancySeverityLow},
		{Kind: store.DiscrepancyInventoryDrift, Severity: store.DiscrepancySeverityMedium},
		{Kind: store.DiscrepancyDataMismatch, Severity: store.DiscrepancySeverityHigh},
		{Kind: store.DiscrepancyInventoryDrift, Severity: store.DiscrepancySeverityCritical},
	}
	got := filterSevere(discrepancies)
	if len(got) != 2 {
		t.Fatalf("expected 2 severe discrepancies, got %d", len(got))
	}
}
