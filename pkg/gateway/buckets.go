package gateway

import (
	"encoding/json"
	"math"
	"time"
)

// Bucket is a single named token bucket, persisted as part of a store's
// rate_limit_state JSON column (spec.md §4.3).
type Bucket struct {
	Tokens           float64   `json:"tokens"`
	Capacity         float64   `json:"capacity"`
	RefillRatePerSec float64   `json:"refill_rate_per_second"`
	LastRefill       time.Time `json:"last_refill"`
}

// State is the full set of named buckets for one store.
type State map[string]Bucket

// ParseState decodes a store's rate_limit_state column. An empty or
// malformed blob yields an empty State — buckets are seeded lazily on
// first use via ensureBucket.
func ParseState(raw json.RawMessage) State {
	if len(raw) == 0 {
		return State{}
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}
	}
	if s == nil {
		s = State{}
	}
	return s
}

// Encode serializes the state back to JSON for persistence.
func (s State) Encode() json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// ensureBucket returns the named bucket, seeding it at full capacity from
// cfg if it does not yet exist (a store's first call to a platform).
func (s State) ensureBucket(name string, cfg BucketConfig, now time.Time) Bucket {
	b, ok := s[name]
	if !ok {
		return Bucket{
			Tokens:           cfg.Capacity,
			Capacity:         cfg.Capacity,
			RefillRatePerSec: cfg.RefillRatePerSec,
			LastRefill:       now,
		}
	}
	return b
}

// refill applies spec.md §4.3's refill algorithm: tokens = min(capacity,
// tokens + elapsed·refill_rate), advancing last_refill to now.
func refill(b Bucket, now time.Time) Bucket {
	elapsed := now.Sub(b.LastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.Tokens = math.Min(b.Capacity, b.Tokens+elapsed*b.RefillRatePerSec)
	b.LastRefill = now
	return b
}

// available reports a bucket's available tokens, refilling first.
func (s State) available(name string, cfg BucketConfig, now time.Time) float64 {
	b := refill(s.ensureBucket(name, cfg, now), now)
	return b.Tokens
}

// tryConsume attempts to deduct cost from every named bucket atomically
// within this in-memory state (the caller commits the result with a single
// CAS write, which is the "same critical section" spec.md §4.3 requires).
// If any bucket lacks sufficient tokens, no bucket is modified and the
// function reports the longest wait among the blocking buckets: each
// bucket's deficit divided by its refill rate, rounded up to whole seconds.
func (s State) tryConsume(now time.Time, plan []BucketCost) (ok bool, retryAfter time.Duration) {
	refilled := make(map[string]Bucket, len(plan))
	maxWait := time.Duration(0)

	for _, pc := range plan {
		b := refill(s.ensureBucket(pc.Name, pc.Config, now), now)
		refilled[pc.Name] = b
		if b.Tokens < pc.Cost {
			deficit := pc.Cost - b.Tokens
			wait := time.Duration(math.Ceil(deficit/pc.Config.RefillRatePerSec)) * time.Second
			if wait > maxWait {
				maxWait = wait
			}
		}
	}

	if maxWait > 0 {
		return false, maxWait
	}

	for _, pc := range plan {
		b := refilled[pc.Name]
		b.Tokens -= pc.Cost
		s[pc.Name] = b
	}
	return true, 0
}

// refund credits cost back to a single bucket, capped at capacity; a
// negative cost debits it. The gateway uses it to settle a GraphQL call's
// estimated cost against the actual cost the platform reports.
func (s State) refund(name string, cost float64, cfg BucketConfig, now time.Time) {
	b := refill(s.ensureBucket(name, cfg, now), now)
	b.Tokens = math.Min(b.Capacity, b.Tokens+cost)
	s[name] = b
}

// throttled reports whether any bucket in plan is below 20% capacity,
// signaling callers to slow down further enqueues (spec.md §4.3).
func (s State) throttled(now time.Time, plan []BucketCost) bool {
	for _, pc := range plan {
		b := refill(s.ensureBucket(pc.Name, pc.Config, now), now)
		if b.Tokens < 0.2*pc.Config.Capacity {
			return true
		}
	}
	return false
}
