package gateway

import (
	"testing"

	"github.com/ordermesh/hub/internal/store"
)

func TestPlanFor_PrintifyCatalogPathUsesBothBuckets(t *testing.T) {
	plan := planFor(store.PlatformPrintify, Request{Path: "/v1/catalog/blueprints"}, 1)

	if len(plan) != 2 {
		t.Fatalf("plan length = %d, want 2", len(plan))
	}
	names := map[string]bool{plan[0].Name: true, plan[1].Name: true}
	if !names["global"] || !names["catalog"] {
		t.Fatalf("plan = %+v, want global and catalog", plan)
	}
}

func TestPlanFor_PrintifyNonCatalogPathUsesGlobalOnly(t *testing.T) {
	plan := planFor(store.PlatformPrintify, Request{Path: "/v1/orders"}, 1)

	if len(plan) != 1 || plan[0].Name != "global" {
		t.Fatalf("plan = %+v, want single global bucket", plan)
	}
}

func TestPlanFor_ShopifyUsesEstimatedCost(t *testing.T) {
	plan := planFor(store.PlatformShopify, Request{Path: "/admin/api/graphql.json"}, 7.5)

	if len(plan) != 1 || plan[0].Name != "points" || plan[0].Cost != 7.5 {
		t.Fatalf("plan = %+v, want single points bucket costing 7.5", plan)
	}
}

func TestPlanFor_UnknownPlatformReturnsNil(t *testing.T) {
	plan := planFor("unknown_platform", Request{Path: "/x"}, 1)

	if plan != nil {
		t.Fatalf("plan = %+v, want nil", plan)
	}
}
