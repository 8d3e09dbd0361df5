package jobengine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/store"
)

func TestExternalIDOrEmpty(t *testing.T) {
	if got := externalIDOrEmpty(nil); got != "" {
		t.Errorf("externalIDOrEmpty(nil) = %q, want empty", got)
	}
	id := "abc123"
	if got := externalIDOrEmpty(&id); got != id {
		t.Errorf("externalIDOrEmpty(&id) = %q, want %q", got, id)
	}
}

func TestPushRequest_UnwritablePlatformIsInvalid(t *testing.T) {
	_, err := pushRequest(context.Background(), nil, uuid.New(), store.PlatformAmazonSP, SyncPayload{}, false)
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for amazon_sp_api, got %v", err)
	}
}

func TestPushRequest_GumroadNeedsNoShopDomain(t *testing.T) {
	externalID := "prod_1"
	req, err := pushRequest(context.Background(), nil, uuid.New(), store.PlatformGumroad, SyncPayload{ExternalID: &externalID}, false)
	if err != nil {
		t.Fatalf("pushRequest() error = %v", err)
	}
	if req.Method != "PUT" || !strings.Contains(req.Path, externalID) {
		t.Errorf("pushRequest() = %+v, want a PUT to a path containing %q", req, externalID)
	}
}

func TestPushRequest_GumroadCreateUsesCollectionPath(t *testing.T) {
	req, err := pushRequest(context.Background(), nil, uuid.New(), store.PlatformGumroad, SyncPayload{}, true)
	if err != nil {
		t.Fatalf("pushRequest() error = %v", err)
	}
	if req.Method != "POST" || req.Path != "https://api.gumroad.com/v2/products" {
		t.Errorf("pushRequest(create=true) = %+v, want a POST to the products collection", req)
	}
}

func TestDecodeSyncPayload_InvalidJSONIsErrInvalid(t *testing.T) {
	job := store.Job{Payload: []byte("not json")}
	_, err := decodeSyncPayload(job)
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeSyncPayload_RoundTrips(t *testing.T) {
	storeID := uuid.New()
	job := store.Job{Payload: []byte(`{"store_id":"` + storeID.String() + `","sku":"sku-1","price":12.5,"quantity":3}`)}
	p, err := decodeSyncPayload(job)
	if err != nil {
		t.Fatalf("decodeSyncPayload() error = %v", err)
	}
	if p.StoreID != storeID || p.SKU != "sku-1" || p.Price != 12.5 || p.Quantity != 3 {
		t.Errorf("decodeSyncPayload() = %+v, want matching fields", p)
	}
}
