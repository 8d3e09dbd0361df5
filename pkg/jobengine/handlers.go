package jobengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/approval"
	"github.com/ordermesh/hub/pkg/gateway"
	"github.com/ordermesh/hub/pkg/reconcile"
)

// SyncPayload is the job payload shape for product_sync, listing_publish,
// and inventory_sync (spec.md §4.2's built-in handler types): the local
// listing state a handler pushes to the platform it belongs to.
type SyncPayload struct {
	StoreID    uuid.UUID `json:"store_id"`
	ExternalID *string   `json:"external_id,omitempty"`
	SKU        string    `json:"sku"`
	Title      string    `json:"title"`
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	Status     string    `json:"status"`
}

// ReconciliationPayload is the job payload shape for an on-demand
// reconciliation pass enqueued by the job engine itself (e.g. the
// reconciliation_needed signal from a successful sync), distinct from the
// scheduler's own periodic trigger.
type ReconciliationPayload struct {
	StoreID uuid.UUID `json:"store_id"`
}

// syncResult is the handler's JSON result for a successful push.
type syncResult struct {
	ExternalID string `json:"external_id"`
}

// RegisterDefaultHandlers wires the built-in job handlers spec.md §4.2
// names: the three outbound sync types, the reconciliation and budget_check
// triggers, and one webhook_<platform> handler per platform.
func RegisterDefaultHandlers(e *Engine, s *store.Store, gw *gateway.Gateway, reconcileEngine *reconcile.Engine, approvalEngine *approval.Engine) {
	e.RegisterHandler(store.JobTypeProductSync, handleProductSync(s, gw))
	e.RegisterHandler(store.JobTypeListingPublish, handleListingPublish(s, gw))
	e.RegisterHandler(store.JobTypeInventorySync, handleInventorySync(s, gw))
	e.RegisterHandler(store.JobTypeReconciliation, handleReconciliation(reconcileEngine))
	e.RegisterHandler(store.JobTypeBudgetCheck, handleBudgetCheck(approvalEngine))

	for _, platform := range []string{
		store.PlatformShopify, store.PlatformPrintify, store.PlatformEtsy,
		store.PlatformGumroad, store.PlatformAmazonSP, store.PlatformAmazonKDP,
	} {
		e.RegisterHandler(store.JobTypeWebhookPrefix+platform, handleWebhookEvent(s))
	}
}

// pushRequest builds the per-platform request for pushing a listing's current
// state upstream. It mirrors pkg/reconcile's RemoteLister table but for the
// write direction; Amazon SP-API and Amazon KDP have no general-purpose
// product write endpoint reachable this way and return an Invalid error so
// the engine fails the job permanently rather than retrying forever.
func pushRequest(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID, platform string, p SyncPayload, create bool) (gateway.Request, error) {
	body, err := json.Marshal(map[string]any{
		"sku":      p.SKU,
		"title":    p.Title,
		"price":    p.Price,
		"quantity": p.Quantity,
		"status":   p.Status,
	})
	if err != nil {
		return gateway.Request{}, fmt.Errorf("encoding listing body: %w", err)
	}

	switch platform {
	case store.PlatformShopify:
		domain, err := gw.ShopDomain(ctx, storeID)
		if err != nil {
			return gateway.Request{}, err
		}
		method, path := "PUT", fmt.Sprintf("https://%s/admin/api/2024-01/products/%s.json", domain, externalIDOrEmpty(p.ExternalID))
		if create {
			method, path = "POST", fmt.Sprintf("https://%s/admin/api/2024-01/products.json", domain)
		}
		return gateway.Request{Method: method, Path: path, Body: body}, nil
	case store.PlatformPrintify:
		domain, err := gw.ShopDomain(ctx, storeID)
		if err != nil {
			return gateway.Request{}, err
		}
		method, path := "PUT", fmt.Sprintf("https://api.printify.com/v1/shops/%s/products/%s.json", domain, externalIDOrEmpty(p.ExternalID))
		if create {
			method, path = "POST", fmt.Sprintf("https://api.printify.com/v1/shops/%s/products.json", domain)
		}
		return gateway.Request{Method: method, Path: path, Body: body}, nil
	case store.PlatformEtsy:
		domain, err := gw.ShopDomain(ctx, storeID)
		if err != nil {
			return gateway.Request{}, err
		}
		method, path := "PUT", fmt.Sprintf("https://openapi.etsy.com/v3/application/shops/%s/listings/%s", domain, externalIDOrEmpty(p.ExternalID))
		if create {
			method, path = "POST", fmt.Sprintf("https://openapi.etsy.com/v3/application/shops/%s/listings", domain)
		}
		return gateway.Request{Method: method, Path: path, Body: body}, nil
	case store.PlatformGumroad:
		method, path := "PUT", fmt.Sprintf("https://api.gumroad.com/v2/products/%s", externalIDOrEmpty(p.ExternalID))
		if create {
			method, path = "POST", "https://api.gumroad.com/v2/products"
		}
		return gateway.Request{Method: method, Path: path, Body: body}, nil
	default:
		return gateway.Request{}, fmt.Errorf("%w: platform %q has no writable product endpoint", store.ErrInvalid, platform)
	}
}

func externalIDOrEmpty(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func decodeSyncPayload(job store.Job) (SyncPayload, error) {
	var p SyncPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return SyncPayload{}, fmt.Errorf("%w: decoding sync payload: %v", store.ErrInvalid, err)
	}
	return p, nil
}

// handleProductSync pushes the full local listing state for an existing
// remote product.
func handleProductSync(s *store.Store, gw *gateway.Gateway) HandlerFunc {
	return func(ctx context.Context, job store.Job) (json.RawMessage, error) {
		p, err := decodeSyncPayload(job)
		if err != nil {
			return nil, err
		}
		if p.ExternalID == nil {
			return nil, fmt.Errorf("%w: product_sync requires an external_id", store.ErrInvalid)
		}
		ps, err := s.GetPlatformStoreByID(ctx, p.StoreID)
		if err != nil {
			return nil, err
		}
		req, err := pushRequest(ctx, gw, p.StoreID, ps.Platform, p, false)
		if err != nil {
			return nil, err
		}
		if _, err := gw.Call(ctx, p.StoreID, req); err != nil {
			return nil, err
		}
		return mustMarshal(syncResult{ExternalID: *p.ExternalID}), nil
	}
}

// handleListingPublish creates a new remote product and records the
// platform-assigned external id against the local listing.
func handleListingPublish(s *store.Store, gw *gateway.Gateway) HandlerFunc {
	return func(ctx context.Context, job store.Job) (json.RawMessage, error) {
		p, err := decodeSyncPayload(job)
		if err != nil {
			return nil, err
		}
		ps, err := s.GetPlatformStoreByID(ctx, p.StoreID)
		if err != nil {
			return nil, err
		}
		req, err := pushRequest(ctx, gw, p.StoreID, ps.Platform, p, true)
		if err != nil {
			return nil, err
		}
		resp, err := gw.Call(ctx, p.StoreID, req)
		if err != nil {
			return nil, err
		}

		var created struct {
			ID any `json:"id"`
		}
		externalID := p.SKU
		if json.Unmarshal(resp.Body, &created) == nil && created.ID != nil {
			externalID = fmt.Sprintf("%v", created.ID)
		}

		if _, err := s.UpsertListing(ctx, store.Listing{
			TenantID:   ps.TenantID,
			StoreID:    p.StoreID,
			ExternalID: &externalID,
			SKU:        p.SKU,
			Title:      p.Title,
			Quantity:   p.Quantity,
			Price:      p.Price,
			Status:     p.Status,
		}); err != nil {
			return nil, fmt.Errorf("recording published listing: %w", err)
		}

		return mustMarshal(syncResult{ExternalID: externalID}), nil
	}
}

// handleInventorySync pushes a listing's state to its existing remote
// product. It sends the same full field set as product_sync (sku, title,
// price, quantity, status), not the quantity alone.
func handleInventorySync(s *store.Store, gw *gateway.Gateway) HandlerFunc {
	return func(ctx context.Context, job store.Job) (json.RawMessage, error) {
		p, err := decodeSyncPayload(job)
		if err != nil {
			return nil, err
		}
		if p.ExternalID == nil {
			return nil, fmt.Errorf("%w: inventory_sync requires an external_id", store.ErrInvalid)
		}
		ps, err := s.GetPlatformStoreByID(ctx, p.StoreID)
		if err != nil {
			return nil, err
		}
		req, err := pushRequest(ctx, gw, p.StoreID, ps.Platform, p, false)
		if err != nil {
			return nil, err
		}
		if _, err := gw.Call(ctx, p.StoreID, req); err != nil {
			return nil, err
		}
		return mustMarshal(syncResult{ExternalID: *p.ExternalID}), nil
	}
}

// handleReconciliation lets a reconciliation pass be triggered through the
// job queue rather than only from the scheduler's periodic tick. No handler
// or engine path enqueues a reconciliation job automatically after a sync.
func handleReconciliation(reconcileEngine *reconcile.Engine) HandlerFunc {
	return func(ctx context.Context, job store.Job) (json.RawMessage, error) {
		var p ReconciliationPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: decoding reconciliation payload: %v", store.ErrInvalid, err)
		}
		result, err := reconcileEngine.Run(ctx, p.StoreID)
		if err != nil {
			return nil, err
		}
		return mustMarshal(result), nil
	}
}

// handleBudgetCheck lets the periodic budget check run as a queued job
// (spec.md §4.6 frames it as "a periodic job per tenant"), as an
// alternative to the scheduler calling Engine.CheckBudgets directly.
func handleBudgetCheck(approvalEngine *approval.Engine) HandlerFunc {
	return func(ctx context.Context, job store.Job) (json.RawMessage, error) {
		if err := approvalEngine.CheckBudgets(ctx); err != nil {
			return nil, err
		}
		return mustMarshal(map[string]string{"status": "checked"}), nil
	}
}

// handleWebhookEvent processes a normalized webhook event: product,
// listing, and inventory updates are applied to the matching local
// listing; every other resource type (orders, royalties) is recorded by
// the job's own completion audit entry and otherwise a no-op, since this
// hub does not carry a separate Order entity (spec.md §3's data model).
func handleWebhookEvent(s *store.Store) HandlerFunc {
	return func(ctx context.Context, job store.Job) (json.RawMessage, error) {
		var event struct {
			ResourceType string          `json:"resource_type"`
			Action       string          `json:"action"`
			ExternalID   string          `json:"external_id"`
			Data         json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(job.Payload, &event); err != nil {
			return nil, fmt.Errorf("%w: decoding webhook event payload: %v", store.ErrInvalid, err)
		}

		switch event.ResourceType {
		case "product", "listing", "inventory":
			if job.StoreID == nil || event.ExternalID == "" {
				return mustMarshal(map[string]string{"status": "ignored"}), nil
			}
			if event.Action == "delete" {
				return mustMarshal(map[string]string{"status": "ignored_delete"}), nil
			}

			existing, err := s.GetListingByExternalID(ctx, *job.StoreID, event.ExternalID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}

			var fields struct {
				Title    *string  `json:"title"`
				Price    *float64 `json:"price"`
				Quantity *int     `json:"quantity"`
				Status   *string  `json:"status"`
			}
			_ = json.Unmarshal(event.Data, &fields)

			listing := existing
			listing.TenantID = job.TenantID
			listing.StoreID = *job.StoreID
			listing.ExternalID = &event.ExternalID
			if fields.Title != nil {
				listing.Title = *fields.Title
			}
			if fields.Price != nil {
				listing.Price = *fields.Price
			}
			if fields.Quantity != nil {
				listing.Quantity = *fields.Quantity
			}
			if fields.Status != nil {
				listing.Status = *fields.Status
			}

			if _, err := s.UpsertListing(ctx, listing); err != nil {
				return nil, fmt.Errorf("applying webhook update to listing: %w", err)
			}
			return mustMarshal(map[string]string{"status": "applied"}), nil
		default:
			return mustMarshal(map[string]string{"status": "recorded"}), nil
		}
	}
}
