package gateway

import (
	"strings"

	"github.com/ordermesh/hub/internal/store"
)

// BucketConfig is the static capacity/refill definition for one named
// bucket on one platform.
type BucketConfig struct {
	Capacity         float64
	RefillRatePerSec float64
}

// BucketCost pairs a bucket with the cost a particular call consumes from it.
type BucketCost struct {
	Name   string
	Config BucketConfig
	Cost   float64
}

// platformBuckets is the bucket taxonomy per platform (spec.md §4.3,
// "examples, not exhaustive" — generalized here to cover every platform
// this gateway talks to).
var platformBuckets = map[string]map[string]BucketConfig{
	store.PlatformPrintify: {
		"global":  {Capacity: 600, RefillRatePerSec: 600.0 / 60},
		"catalog": {Capacity: 100, RefillRatePerSec: 100.0 / 60},
	},
	store.PlatformShopify: {
		"points": {Capacity: 1000, RefillRatePerSec: 50},
	},
	store.PlatformEtsy: {
		"global": {Capacity: 10000, RefillRatePerSec: 10000.0 / 86400},
	},
	store.PlatformAmazonSP: {
		"global": {Capacity: 30, RefillRatePerSec: 0.5},
	},
	store.PlatformGumroad: {
		"global": {Capacity: 100, RefillRatePerSec: 100.0 / 60},
	},
	store.PlatformAmazonKDP: {
		"global": {Capacity: 60, RefillRatePerSec: 1},
	},
}

// planFor builds the bucket-cost plan for a request against a platform.
// Printify catalog paths consume both the global and catalog buckets;
// every other call consumes only the platform's primary bucket.
func planFor(platform string, req Request, estimatedCost float64) []BucketCost {
	buckets, ok := platformBuckets[platform]
	if !ok {
		return nil
	}

	switch platform {
	case store.PlatformPrintify:
		plan := []BucketCost{{Name: "global", Config: buckets["global"], Cost: 1}}
		if strings.Contains(req.Path, "/catalog") {
			plan = append(plan, BucketCost{Name: "catalog", Config: buckets["catalog"], Cost: 1})
		}
		return plan
	case store.PlatformShopify:
		return []BucketCost{{Name: "points", Config: buckets["points"], Cost: estimatedCost}}
	default:
		return []BucketCost{{Name: "global", Config: buckets["global"], Cost: 1}}
	}
}
