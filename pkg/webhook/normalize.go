package webhook

import (
	"encoding/json"
)

// NormalizedEvent is the uniform shape every platform payload is reduced to
// before a job is enqueued.
type NormalizedEvent struct {
	EventType    string          `json:"event_type"`
	ExternalID   string          `json:"external_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Action       string          `json:"action"`
	Data         json.RawMessage `json:"data"`
}

// rawEvent is the subset of fields present across all six platforms' webhook
// payload shapes, expressed generically enough for a single unmarshal.
type rawEvent struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Event string `json:"event"`

	ID         string `json:"id"`
	ExternalID string `json:"external_id"`

	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
}

// normalize extracts external_id/event_type and produces the normalized
// event shape. It is total: unknown topics map to resource_type="unknown"
// and action="update" rather than failing (spec.md §4.4).
func normalize(platform string, body []byte) NormalizedEvent {
	var raw rawEvent
	_ = json.Unmarshal(body, &raw)

	eventType := firstNonEmpty(raw.Topic, raw.Type, raw.Event, "unknown")
	externalID := firstNonEmpty(raw.ExternalID, raw.ID, raw.ResourceID)

	resourceType, action := classify(platform, eventType)
	if raw.ResourceType != "" {
		resourceType = raw.ResourceType
	}

	return NormalizedEvent{
		EventType:    eventType,
		ExternalID:   externalID,
		ResourceType: resourceType,
		ResourceID:   externalID,
		Action:       action,
		Data:         json.RawMessage(body),
	}
}

// classify maps a platform's raw topic/type string to {resource_type,
// action}. Each platform has its own vocabulary; unrecognized topics fall
// through to the unknown/update default.
func classify(platform, eventType string) (resourceType, action string) {
	switch platform {
	case "shopify":
		switch eventType {
		case "products/create":
			return "product", "create"
		case "products/update":
			return "product", "update"
		case "products/delete":
			return "product", "delete"
		case "orders/create":
			return "order", "create"
		case "orders/updated":
			return "order", "update"
		case "orders/cancelled":
			return "order", "cancel"
		case "inventory_levels/update":
			return "inventory", "update"
		}
	case "printify":
		switch eventType {
		case "product:publish:started":
			return "product", "create"
		case "product:publish:completed":
			return "product", "update"
		case "order:created":
			return "order", "create"
		case "order:shipment:created":
			return "order", "update"
		}
	case "etsy":
		switch eventType {
		case "listing_state_changed":
			return "listing", "update"
		case "listing_deleted":
			return "listing", "delete"
		}
	case "gumroad":
		switch eventType {
		case "sale":
			return "order", "create"
		case "refund":
			return "order", "update"
		}
	case "amazon_sp_api":
		switch eventType {
		case "ORDER_CHANGE":
			return "order", "update"
		case "ITEM_INVENTORY_EVENT_CHANGE":
			return "inventory", "update"
		}
	case "amazon_kdp":
		switch eventType {
		case "royalty_report":
			return "royalty", "update"
		}
	}
	return "unknown", "update"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
