// Package gateway implements the Platform Gateway (spec.md §4.3): every
// outbound call to an external commerce platform is wrapped with per-store
// token-bucket rate limiting, GraphQL query cost estimation, OAuth2
// credential refresh, and an audit trail.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/audit"
	"github.com/ordermesh/hub/internal/crypto"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/internal/telemetry"
	"github.com/ordermesh/hub/pkg/approval"
)

const maxCASRetries = 5

// Request is one outbound call to a platform.
type Request struct {
	Method       string
	Path         string // full URL or platform-relative path; callers resolve the base
	Body         []byte
	Headers      map[string]string
	GraphQLQuery string // set for Shopify GraphQL calls; drives cost estimation
}

// Response is the outcome of a successful Call.
type Response struct {
	StatusCode int
	Body       []byte
	Cost       float64
	Throttled  bool
}

// Gateway wraps an *http.Client with the rate limiting and credential
// handling described in spec.md §4.3.
type Gateway struct {
	store      *store.Store
	sealer     *crypto.Sealer
	audit      *audit.Writer
	approval   *approval.Engine
	logger     *slog.Logger
	httpClient *http.Client
}

// New creates a Gateway. approvalEngine gates and meters outbound calls
// against the api_calls budget configured for the target store (spec.md
// §4.6); a store with no such budget configured is never gated.
func New(s *store.Store, sealer *crypto.Sealer, auditWriter *audit.Writer, approvalEngine *approval.Engine, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:      s,
		sealer:     sealer,
		audit:      auditWriter,
		approval:   approvalEngine,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Call executes req against storeID's platform, honoring the store's
// persisted rate-limit state. Returns *RateLimitedError,
// *CredentialsMissingError, *NotFoundError, *Upstream4xxError, or
// *Upstream5xxError on failure.
func (g *Gateway) Call(ctx context.Context, storeID uuid.UUID, req Request) (Response, error) {
	platformStore, err := g.store.GetPlatformStoreByID(ctx, storeID)
	if errors.Is(err, store.ErrNotFound) {
		return Response{}, &NotFoundError{What: fmt.Sprintf("store %s", storeID)}
	}
	if err != nil {
		return Response{}, fmt.Errorf("loading store: %w", err)
	}
	if !platformStore.IsActive {
		return Response{}, &CredentialsMissingError{StoreID: storeID.String(), Cause: fmt.Errorf("store is inactive")}
	}

	budget, hasBudget, err := g.loadAPICallBudget(ctx, platformStore.TenantID, storeID)
	if err != nil {
		return Response{}, err
	}
	if hasBudget {
		if err := g.approval.Admit(budget); err != nil {
			return Response{}, err
		}
	}

	slimmed := req.GraphQLQuery
	estimatedCost := 1.0
	if slimmed != "" {
		slimmed = SlimQuery(slimmed)
		estimatedCost = EstimateCost(slimmed)
	}

	_, throttled, err := g.reserve(ctx, &platformStore, req, estimatedCost)
	if err != nil {
		return Response{}, err
	}

	creds, err := unsealCredentials(g.sealer, platformStore.Credentials)
	if err != nil {
		return Response{}, &CredentialsMissingError{StoreID: storeID.String(), Cause: err}
	}

	token, refreshedCreds, err := accessToken(ctx, creds)
	if err != nil {
		return Response{}, &CredentialsMissingError{StoreID: storeID.String(), Cause: err}
	}
	if refreshedCreds != nil {
		sealed, sealErr := SealCredentials(g.sealer, *refreshedCreds)
		if sealErr != nil {
			g.logger.Warn("resealing refreshed credentials failed", "error", sealErr, "store_id", storeID)
		} else if updateErr := g.store.UpdateCredentials(ctx, storeID, sealed); updateErr != nil {
			g.logger.Warn("persisting refreshed credentials failed", "error", updateErr, "store_id", storeID)
		}
	}

	body := req.Body
	if slimmed != "" {
		body = []byte(fmt.Sprintf(`{"query":%q}`, slimmed))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := g.doWithRetry(httpReq)
	if err != nil {
		telemetry.GatewayCallsTotal.WithLabelValues(platformStore.Platform, "transient_error").Inc()
		return Response{}, fmt.Errorf("calling platform: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response body: %w", err)
	}

	actualCost := actualCostFromResponse(respBody, estimatedCost)
	if actualCost != estimatedCost {
		g.reconcileCost(ctx, storeID, req.GraphQLQuery != "", actualCost-estimatedCost)
	}

	result, callErr := g.classifyResponse(ctx, storeID, platformStore.TenantID, platformStore.Platform, resp.StatusCode, respBody)

	g.auditCall(ctx, platformStore.TenantID, req, actualCost, callErr)

	if callErr != nil {
		return Response{}, callErr
	}

	if hasBudget {
		if _, err := g.store.IncrementBudget(ctx, budget.ID, 1); err != nil {
			g.logger.Warn("incrementing api_calls budget", "error", err, "budget_id", budget.ID)
		}
	}

	result.Cost = actualCost
	result.Throttled = throttled
	return result, nil
}

// loadAPICallBudget looks up the api_calls budget configured for storeID, if
// any. Most stores have none configured, in which case calls through them
// are never gated or metered by a budget.
func (g *Gateway) loadAPICallBudget(ctx context.Context, tenantID, storeID uuid.UUID) (store.Budget, bool, error) {
	budget, err := g.store.GetBudgetByStoreAndType(ctx, tenantID, storeID, store.BudgetTypeAPICalls)
	if errors.Is(err, store.ErrNotFound) {
		return store.Budget{}, false, nil
	}
	if err != nil {
		return store.Budget{}, false, fmt.Errorf("loading api_calls budget: %w", err)
	}
	return budget, true, nil
}

// doWithRetry executes httpReq, retrying transport-level failures (refused
// connections, timeouts, DNS hiccups) with cenkalti/backoff/v4's
// exponential backoff. It does not retry on a successful round trip
// regardless of status code; classifyResponse decides what a 4xx/5xx means,
// and spec.md's Transient retry for those lives at the job level, not here.
func (g *Gateway) doWithRetry(httpReq *http.Request) (*http.Response, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), httpReq.Context())

	var resp *http.Response
	op := func() error {
		if httpReq.GetBody != nil {
			body, err := httpReq.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			httpReq.Body = body
		}
		r, err := g.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return resp, nil
}

// ShopDomain returns the store's shop domain or account identifier from its
// unsealed credentials (e.g. a Shopify "*.myshopify.com" subdomain), for
// callers that need to build platform-relative URLs.
func (g *Gateway) ShopDomain(ctx context.Context, storeID uuid.UUID) (string, error) {
	ps, err := g.store.GetPlatformStoreByID(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("loading store: %w", err)
	}
	creds, err := unsealCredentials(g.sealer, ps.Credentials)
	if err != nil {
		return "", fmt.Errorf("unsealing credentials: %w", err)
	}
	return creds.ShopDomain, nil
}

// reserve performs the rate-limit check-and-consume under optimistic
// concurrency retry (spec.md §5: "optimistic concurrency with retry").
func (g *Gateway) reserve(ctx context.Context, ps *store.PlatformStore, req Request, estimatedCost float64) (plan []BucketCost, throttled bool, err error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		state := ParseState(ps.RateLimitState)
		now := time.Now()
		plan = planFor(ps.Platform, req, estimatedCost)
		if plan == nil {
			return nil, false, nil
		}

		ok, retryAfter := state.tryConsume(now, plan)
		if !ok {
			telemetry.GatewayRateLimitedTotal.WithLabelValues(ps.Platform, plan[0].Name).Inc()
			return nil, false, &RateLimitedError{RetryAfter: retryAfter}
		}

		throttled = state.throttled(now, plan)

		updated, casErr := g.store.UpdateRateLimitStateCAS(ctx, ps.ID, ps.RateLimitVersion, state.Encode())
		if casErr == nil {
			*ps = updated
			telemetry.GatewayQueryCost.WithLabelValues(ps.Platform, "estimated").Observe(estimatedCost)
			return plan, throttled, nil
		}
		if !errors.Is(casErr, store.ErrConflict) {
			return nil, false, fmt.Errorf("persisting rate limit state: %w", casErr)
		}

		refreshed, getErr := g.store.GetPlatformStoreByID(ctx, ps.ID)
		if getErr != nil {
			return nil, false, fmt.Errorf("reloading store after cas conflict: %w", getErr)
		}
		*ps = refreshed
	}
	return nil, false, fmt.Errorf("gateway: exhausted rate limit cas retries for store %s", ps.ID)
}

// reconcileCost adjusts the persisted bucket to match the platform's
// actual_query_cost, refunding or debiting the delta within its own CAS
// loop (spec.md §4.3: "Actual cost... supersedes the estimate").
func (g *Gateway) reconcileCost(ctx context.Context, storeID uuid.UUID, isGraphQL bool, delta float64) {
	if !isGraphQL || delta == 0 {
		return
	}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ps, err := g.store.GetPlatformStoreByID(ctx, storeID)
		if err != nil {
			g.logger.Warn("reconciling gateway cost: reloading store failed", "error", err)
			return
		}
		state := ParseState(ps.RateLimitState)
		cfg, ok := platformBuckets[ps.Platform]["points"]
		if !ok {
			return
		}
		state.refund("points", -delta, cfg, time.Now())
		if _, err := g.store.UpdateRateLimitStateCAS(ctx, storeID, ps.RateLimitVersion, state.Encode()); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			g.logger.Warn("reconciling gateway cost failed", "error", err)
			return
		}
		return
	}
}

func (g *Gateway) classifyResponse(ctx context.Context, storeID, tenantID uuid.UUID, platform string, status int, body []byte) (Response, error) {
	switch {
	case status == http.StatusTooManyRequests:
		telemetry.GatewayCallsTotal.WithLabelValues(platform, "external_rate_limit").Inc()
		return Response{}, &RateLimitedError{RetryAfter: 30 * time.Second}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		telemetry.GatewayCallsTotal.WithLabelValues(platform, "unauthorized").Inc()
		_ = g.store.DeactivateStore(ctx, storeID)
		if _, err := g.store.CreateApproval(ctx, store.CreateApprovalParams{
			TenantID:     tenantID,
			ResourceType: "store",
			ResourceID:   storeID,
			Action:       store.ApprovalActionCredentialsInvalid,
			Payload:      mustMarshal(map[string]any{"status": status, "platform": platform}),
			TTL:          7 * 24 * time.Hour,
		}); err != nil {
			g.logger.Warn("creating credentials_invalid approval", "error", err, "store_id", storeID)
		}
		return Response{}, &CredentialsMissingError{StoreID: storeID.String(), Cause: fmt.Errorf("platform rejected credentials (status %d)", status)}
	case status == http.StatusNotFound:
		telemetry.GatewayCallsTotal.WithLabelValues(platform, "not_found").Inc()
		return Response{}, &NotFoundError{What: "remote resource"}
	case status >= 400 && status < 500:
		telemetry.GatewayCallsTotal.WithLabelValues(platform, "upstream_4xx").Inc()
		return Response{}, &Upstream4xxError{StatusCode: status, Body: string(body)}
	case status >= 500:
		telemetry.GatewayCallsTotal.WithLabelValues(platform, "upstream_5xx").Inc()
		return Response{}, &Upstream5xxError{StatusCode: status, Body: string(body)}
	default:
		telemetry.GatewayCallsTotal.WithLabelValues(platform, "success").Inc()
		return Response{StatusCode: status, Body: body}, nil
	}
}

func (g *Gateway) auditCall(ctx context.Context, tenantID uuid.UUID, req Request, cost float64, callErr error) {
	detail, _ := json.Marshal(map[string]any{
		"path":   req.Path,
		"method": req.Method,
		"cost":   cost,
	})
	action := "api_call"
	if callErr != nil {
		var rl *RateLimitedError
		if errors.As(callErr, &rl) {
			action = "external_rate_limit"
		}
	}
	g.audit.Log(audit.Entry{
		TenantID:     tenantID,
		Action:       action,
		ResourceType: "gateway_call",
		NewValue:     detail,
		Tags:         []string{store.TagRateLimiting},
	})
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// actualCostFromResponse looks for a Shopify-style extensions.cost.actualQueryCost
// field, falling back to the pre-flight estimate when absent or unparseable.
func actualCostFromResponse(body []byte, estimated float64) float64 {
	var payload struct {
		Extensions struct {
			Cost struct {
				ActualQueryCost *float64 `json:"actualQueryCost"`
			} `json:"cost"`
		} `json:"extensions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return estimated
	}
	if payload.Extensions.Cost.ActualQueryCost != nil {
		return *payload.Extensions.Cost.ActualQueryCost
	}
	return estimated
}
