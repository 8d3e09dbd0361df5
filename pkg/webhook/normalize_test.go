package webhook

import "testing"

func TestNormalize_ShopifyProductUpdate(t *testing.T) {
	body := []byte(`{"topic":"products/update","id":"778899"}`)

	got := normalize("shopify", body)

	if got.EventType != "products/update" {
		t.Fatalf("EventType = %q, want products/update", got.EventType)
	}
	if got.ExternalID != "778899" {
		t.Fatalf("ExternalID = %q, want 778899", got.ExternalID)
	}
	if got.ResourceType != "product" || got.Action != "update" {
		t.Fatalf("ResourceType/Action = %q/%q, want product/update", got.ResourceType, got.Action)
	}
}

func TestNormalize_UnknownTopicIsTotal(t *testing.T) {
	body := []byte(`{"topic":"something_nobody_has_seen","id":"1"}`)

	got := normalize("shopify", body)

	if got.ResourceType != "unknown" || got.Action != "update" {
		t.Fatalf("ResourceType/Action = %q/%q, want unknown/update", got.ResourceType, got.Action)
	}
}

func TestNormalize_GumroadSale(t *testing.T) {
	body := []byte(`{"event":"sale","resource_id":"abc123"}`)

	got := normalize("gumroad", body)

	if got.ExternalID != "abc123" {
		t.Fatalf("ExternalID = %q, want abc123", got.ExternalID)
	}
	if got.ResourceType != "order" || got.Action != "create" {
		t.Fatalf("ResourceType/Action = %q/%q, want order/create", got.ResourceType, got.Action)
	}
}

func TestNormalize_MalformedBodyStillReturnsTotal(t *testing.T) {
	got := normalize("shopify", []byte("not json"))

	if got.ResourceType != "unknown" || got.Action != "update" {
		t.Fatalf("ResourceType/Action = %q/%q, want unknown/update on malformed input", got.ResourceType, got.Action)
	}
}
