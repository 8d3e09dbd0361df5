package gateway

import (
	"testing"
	"time"
)

func TestRefill_CapsAtCapacity(t *testing.T) {
	now := time.Now()
	b := Bucket{Tokens: 90, Capacity: 100, RefillRatePerSec: 10, LastRefill: now.Add(-5 * time.Second)}

	got := refill(b, now)

	if got.Tokens != 100 {
		t.Fatalf("Tokens = %v, want 100 (capped)", got.Tokens)
	}
}

func TestRefill_AccruesPartialElapsed(t *testing.T) {
	now := time.Now()
	b := Bucket{Tokens: 10, Capacity: 100, RefillRatePerSec: 2, LastRefill: now.Add(-3 * time.Second)}

	got := refill(b, now)

	if got.Tokens != 16 {
		t.Fatalf("Tokens = %v, want 16", got.Tokens)
	}
}

func TestTryConsume_SingleBucketSufficientTokens(t *testing.T) {
	now := time.Now()
	s := State{}
	cfg := BucketConfig{Capacity: 100, RefillRatePerSec: 10}
	plan := []BucketCost{{Name: "global", Config: cfg, Cost: 5}}

	ok, retryAfter := s.tryConsume(now, plan)

	if !ok {
		t.Fatalf("tryConsume: want ok, got retryAfter=%v", retryAfter)
	}
	if s["global"].Tokens != 95 {
		t.Fatalf("remaining tokens = %v, want 95", s["global"].Tokens)
	}
}

func TestTryConsume_InsufficientTokensLeavesStateUnchanged(t *testing.T) {
	now := time.Now()
	cfg := BucketConfig{Capacity: 100, RefillRatePerSec: 10}
	s := State{"global": {Tokens: 2, Capacity: 100, RefillRatePerSec: 10, LastRefill: now}}
	plan := []BucketCost{{Name: "global", Config: cfg, Cost: 5}}

	ok, retryAfter := s.tryConsume(now, plan)

	if ok {
		t.Fatalf("tryConsume: want rejected")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %v, want positive", retryAfter)
	}
	if s["global"].Tokens != 2 {
		t.Fatalf("tokens mutated on rejection: got %v, want 2", s["global"].Tokens)
	}
}

func TestTryConsume_SecondaryBucketShortfallDoesNotConsumePrimary(t *testing.T) {
	now := time.Now()
	globalCfg := BucketConfig{Capacity: 600, RefillRatePerSec: 10}
	catalogCfg := BucketConfig{Capacity: 100, RefillRatePerSec: 1}
	s := State{
		"global":  {Tokens: 500, Capacity: 600, RefillRatePerSec: 10, LastRefill: now},
		"catalog": {Tokens: 0, Capacity: 100, RefillRatePerSec: 1, LastRefill: now},
	}
	plan := []BucketCost{
		{Name: "global", Config: globalCfg, Cost: 1},
		{Name: "catalog", Config: catalogCfg, Cost: 1},
	}

	ok, _ := s.tryConsume(now, plan)

	if ok {
		t.Fatalf("tryConsume: want rejected on catalog shortfall")
	}
	if s["global"].Tokens != 500 {
		t.Fatalf("global bucket consumed despite catalog shortfall: got %v, want 500", s["global"].Tokens)
	}
}

func TestRefund_CreditsBackWithoutExceedingCapacity(t *testing.T) {
	now := time.Now()
	cfg := BucketConfig{Capacity: 10, RefillRatePerSec: 1}
	s := State{"global": {Tokens: 9, Capacity: 10, RefillRatePerSec: 1, LastRefill: now}}

	s.refund("global", 5, cfg, now)

	if s["global"].Tokens != 10 {
		t.Fatalf("Tokens = %v, want 10 (capped)", s["global"].Tokens)
	}
}

func TestThrottled_BelowTwentyPercent(t *testing.T) {
	now := time.Now()
	cfg := BucketConfig{Capacity: 100, RefillRatePerSec: 1}
	s := State{"global": {Tokens: 15, Capacity: 100, RefillRatePerSec: 1, LastRefill: now}}
	plan := []BucketCost{{Name: "global", Config: cfg, Cost: 1}}

	if !s.throttled(now, plan) {
		t.Fatalf("throttled = false, want true at 15%% capacity")
	}
}

func TestThrottled_AboveTwentyPercent(t *testing.T) {
	now := time.Now()
	cfg := BucketConfig{Capacity: 100, RefillRatePerSec: 1}
	s := State{"global": {Tokens: 50, Capacity: 100, RefillRatePerSec: 1, LastRefill: now}}
	plan := []BucketCost{{Name: "global", Config: cfg, Cost: 1}}

	if s.throttled(now, plan) {
		t.Fatalf("throttled = true, want false at 50%% capacity")
	}
}

func TestParseState_EmptyAndMalformed(t *testing.T) {
	if got := ParseState(nil); got == nil {
		t.Fatalf("ParseState(nil) = nil, want empty State")
	}
	if got := ParseState([]byte("not json")); len(got) != 0 {
		t.Fatalf("ParseState(malformed) = %v, want empty", got)
	}
}

func TestStateEncodeParseRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	s := State{"global": {Tokens: 42, Capacity: 100, RefillRatePerSec: 5, LastRefill: now}}

	got := ParseState(s.Encode())

	if got["global"].Tokens != 42 {
		t.Fatalf("round trip tokens = %v, want 42", got["global"].Tokens)
	}
}
