package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestDeduplicator(t *testing.T) *deduplicator {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return newDeduplicator(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeduplicator_CacheHitSkipsStore(t *testing.T) {
	d := newTestDeduplicator(t)
	ctx := context.Background()
	storeID := uuid.New()
	eventID := uuid.New()

	d.record(ctx, storeID, "ext-1", "product_update", eventID)

	// A nil *store.Store would panic if the cache miss path were reached,
	// so passing one here proves the cache hit short-circuits the lookup.
	got, err := d.check(ctx, nil, storeID, "ext-1", "product_update")
	if err != nil {
		t.Fatalf("check() error = %v", err)
	}
	want := dedupResult{isDuplicate: true, eventID: eventID}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(dedupResult{})); diff != "" {
		t.Errorf("check() mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupKey_IsScopedByStoreEventTypeAndExternalID(t *testing.T) {
	storeID := uuid.New()
	k1 := dedupKey(storeID, "ext-1", "product_update")
	k2 := dedupKey(storeID, "ext-2", "product_update")
	k3 := dedupKey(storeID, "ext-1", "inventory_update")
	if k1 == k2 || k1 == k3 || k2 == k3 {
		t.Errorf("expected distinct keys, got %q, %q, %q", k1, k2, k3)
	}
}
