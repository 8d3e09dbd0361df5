package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/gateway"
)

// RegisterDefaultListers wires the built-in RemoteLister for every platform
// the gateway talks to. Call sites that need a test double can register a
// replacement per-platform instead.
func RegisterDefaultListers(e *Engine) {
	e.RegisterLister(store.PlatformShopify, ShopifyLister)
	e.RegisterLister(store.PlatformPrintify, PrintifyLister)
	e.RegisterLister(store.PlatformEtsy, EtsyLister)
	e.RegisterLister(store.PlatformGumroad, GumroadLister)
	e.RegisterLister(store.PlatformAmazonSP, AmazonSPLister)
	e.RegisterLister(store.PlatformAmazonKDP, AmazonKDPLister)
}

const shopifyProductsQuery = `
query {
  products(first: 100) {
    edges {
      node {
        id
        title
        status
        variants(first: 1) {
          edges { node { price inventoryQuantity } }
        }
      }
    }
  }
}`

type shopifyProductsResponse struct {
	Data struct {
		Products struct {
			Edges []struct {
				Node struct {
					ID     string `json:"id"`
					Title  string `json:"title"`
					Status string `json:"status"`
					Variants struct {
						Edges []struct {
							Node struct {
								Price             string `json:"price"`
								InventoryQuantity int    `json:"inventoryQuantity"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"variants"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
}

// ShopifyLister fetches the store's product catalog via a single GraphQL
// page: only the first 100 products are returned, and later pages are
// not fetched.
func ShopifyLister(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error) {
	domain, err := gw.ShopDomain(ctx, storeID)
	if err != nil {
		return nil, err
	}
	resp, err := gw.Call(ctx, storeID, gateway.Request{
		Method:       "POST",
		Path:         fmt.Sprintf("https://%s/admin/api/2024-01/graphql.json", domain),
		GraphQLQuery: shopifyProductsQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching shopify products: %w", err)
	}

	var parsed shopifyProductsResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding shopify products response: %w", err)
	}

	out := make([]RemoteResource, 0, len(parsed.Data.Products.Edges))
	for _, edge := range parsed.Data.Products.Edges {
		n := edge.Node
		var qty int
		var price float64
		if len(n.Variants.Edges) > 0 {
			qty = n.Variants.Edges[0].Node.InventoryQuantity
			fmt.Sscanf(n.Variants.Edges[0].Node.Price, "%f", &price)
		}
		out = append(out, RemoteResource{
			ExternalID: n.ID,
			Title:      n.Title,
			Quantity:   qty,
			Price:      price,
			Status:     n.Status,
		})
	}
	return out, nil
}

type printifyProduct struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Visible bool   `json:"visible"`
	Variants []struct {
		Price    float64 `json:"price"`
		IsEnabled bool   `json:"is_enabled"`
	} `json:"variants"`
}

type printifyProductsResponse struct {
	Data []printifyProduct `json:"data"`
}

// PrintifyLister fetches a shop's product catalog. Printify products carry
// per-variant pricing rather than a single inventory count, so Quantity is
// left at zero and only price/status drift are meaningful here.
func PrintifyLister(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error) {
	domain, err := gw.ShopDomain(ctx, storeID)
	if err != nil {
		return nil, err
	}
	resp, err := gw.Call(ctx, storeID, gateway.Request{
		Method: "GET",
		Path:   fmt.Sprintf("https://api.printify.com/v1/shops/%s/products.json", domain),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching printify products: %w", err)
	}

	var parsed printifyProductsResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding printify products response: %w", err)
	}

	out := make([]RemoteResource, 0, len(parsed.Data))
	for _, p := range parsed.Data {
		status := "active"
		if !p.Visible {
			status = "archived"
		}
		var price float64
		if len(p.Variants) > 0 {
			price = p.Variants[0].Price / 100 // Printify quotes variant price in cents
		}
		out = append(out, RemoteResource{ExternalID: p.ID, Title: p.Title, Price: price, Status: status})
	}
	return out, nil
}

type etsyListingsResponse struct {
	Results []struct {
		ListingID int64  `json:"listing_id"`
		Title     string `json:"title"`
		State     string `json:"state"`
		Quantity  int    `json:"quantity"`
		Price     struct {
			Amount   int `json:"amount"`
			Divisor  int `json:"divisor"`
		} `json:"price"`
	} `json:"results"`
}

// EtsyLister fetches the shop's active and inactive listings.
func EtsyLister(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error) {
	domain, err := gw.ShopDomain(ctx, storeID)
	if err != nil {
		return nil, err
	}
	resp, err := gw.Call(ctx, storeID, gateway.Request{
		Method: "GET",
		Path:   fmt.Sprintf("https://openapi.etsy.com/v3/application/shops/%s/listings", domain),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching etsy listings: %w", err)
	}

	var parsed etsyListingsResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding etsy listings response: %w", err)
	}

	out := make([]RemoteResource, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		var price float64
		if r.Price.Divisor > 0 {
			price = float64(r.Price.Amount) / float64(r.Price.Divisor)
		}
		out = append(out, RemoteResource{
			ExternalID: fmt.Sprintf("%d", r.ListingID),
			Title:      r.Title,
			Quantity:   r.Quantity,
			Price:      price,
			Status:     r.State,
		})
	}
	return out, nil
}

type gumroadProductsResponse struct {
	Products []struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		Price      float64 `json:"price"`
		Published  bool    `json:"published"`
		MaxPurchaseCount *int `json:"max_purchase_count"`
		SalesCount int     `json:"sales_count"`
	} `json:"products"`
}

// GumroadLister fetches the creator's product list. Gumroad products are
// digital goods without a platform-tracked inventory count, so Quantity
// reports remaining sellable units when the product caps purchases, and
// zero (unlimited, no drift signal) otherwise.
func GumroadLister(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error) {
	resp, err := gw.Call(ctx, storeID, gateway.Request{
		Method: "GET",
		Path:   "https://api.gumroad.com/v2/products",
	})
	if err != nil {
		return nil, fmt.Errorf("fetching gumroad products: %w", err)
	}

	var parsed gumroadProductsResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding gumroad products response: %w", err)
	}

	out := make([]RemoteResource, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		status := "unpublished"
		if p.Published {
			status = "published"
		}
		qty := 0
		if p.MaxPurchaseCount != nil {
			qty = *p.MaxPurchaseCount - p.SalesCount
		}
		out = append(out, RemoteResource{ExternalID: p.ID, Title: p.Name, Quantity: qty, Price: p.Price / 100, Status: status})
	}
	return out, nil
}

type amazonSPInventoryResponse struct {
	Payload struct {
		InventorySummaries []struct {
			ASIN           string `json:"asin"`
			SellerSKU      string `json:"sellerSku"`
			Condition      string `json:"condition"`
			TotalQuantity  int    `json:"totalQuantity"`
		} `json:"inventorySummaries"`
	} `json:"payload"`
}

// AmazonSPLister fetches FBA inventory summaries via SP-API. Price is not
// carried by the inventory feed, so only quantity and status drift are
// meaningful for Amazon SP-API listings.
func AmazonSPLister(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error) {
	resp, err := gw.Call(ctx, storeID, gateway.Request{
		Method: "GET",
		Path:   "https://sellingpartnerapi-na.amazon.com/fba/inventory/v1/summaries",
	})
	if err != nil {
		return nil, fmt.Errorf("fetching amazon sp-api inventory: %w", err)
	}

	var parsed amazonSPInventoryResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding amazon sp-api inventory response: %w", err)
	}

	out := make([]RemoteResource, 0, len(parsed.Payload.InventorySummaries))
	for _, s := range parsed.Payload.InventorySummaries {
		status := "active"
		if s.Condition != "" && s.Condition != "New" {
			status = s.Condition
		}
		out = append(out, RemoteResource{ExternalID: s.SellerSKU, Title: s.ASIN, Quantity: s.TotalQuantity, Status: status})
	}
	return out, nil
}

type amazonKDPRoyaltyResponse struct {
	Titles []struct {
		ASIN  string  `json:"asin"`
		Title string  `json:"title"`
		Price float64 `json:"list_price"`
		Status string `json:"marketplace_status"`
	} `json:"titles"`
}

// AmazonKDPLister fetches published title metadata from the royalty
// report feed. KDP titles have no inventory concept, so Quantity is
// always zero and only price/status drift apply.
func AmazonKDPLister(ctx context.Context, gw *gateway.Gateway, storeID uuid.UUID) ([]RemoteResource, error) {
	resp, err := gw.Call(ctx, storeID, gateway.Request{
		Method: "GET",
		Path:   "https://kdp-reports.amazon.com/v0/titles",
	})
	if err != nil {
		return nil, fmt.Errorf("fetching amazon kdp titles: %w", err)
	}

	var parsed amazonKDPRoyaltyResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding amazon kdp titles response: %w", err)
	}

	out := make([]RemoteResource, 0, len(parsed.Titles))
	for _, t := range parsed.Titles {
		out = append(out, RemoteResource{ExternalID: t.ASIN, Title: t.Title, Price: t.Price, Status: t.Status})
	}
	return out, nil
}
