package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses. Transitions are enforced by Store methods, not by callers
// setting the field directly.
const (
	JobStatusPending   = "pending"
	JobStatusClaimed   = "claimed"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Built-in job types the engine ships handlers for.
const (
	JobTypeProductSync     = "product_sync"
	JobTypeListingPublish  = "listing_publish"
	JobTypeInventorySync   = "inventory_sync"
	JobTypeReconciliation  = "reconciliation"
	JobTypeBudgetCheck     = "budget_check"
	JobTypeWebhookPrefix   = "webhook_"
)

// Job is a unit of deferred work.
type Job struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	StoreID        *uuid.UUID
	Type           string
	Payload        json.RawMessage
	Status         string
	Priority       int
	Attempts       int
	MaxAttempts    int
	ScheduledAt    time.Time
	ClaimedAt      *time.Time
	ClaimedBy      *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastError      *string
	Result         json.RawMessage
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookEvent statuses.
const (
	WebhookStatusReceived   = "received"
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
)

// WebhookEvent is an immutable record of an inbound platform callback.
type WebhookEvent struct {
	ID          uuid.UUID
	StoreID     uuid.UUID
	ExternalID  string
	EventType   string
	Payload     json.RawMessage
	Signature   *string
	Status      string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
	Error       *string
}

// Approval statuses.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
	ApprovalStatusExpired  = "expired"
)

// Approval action types the core emits.
const (
	ApprovalActionJobRetry           = "job_retry"
	ApprovalActionResolveDiscrepancy = "resolve_discrepancies"
	ApprovalActionBudgetOverride     = "budget_override"
	ApprovalActionCredentialsInvalid = "credentials_invalid"
)

// Approval gates a sensitive action behind operator sign-off.
type Approval struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ResourceType   string
	ResourceID     uuid.UUID
	Action         string
	Payload        json.RawMessage
	RequestedBy    *string
	Status         string
	ExpiresAt      time.Time
	DecidedAt      *time.Time
	DecidedBy      *string
	DecisionReason *string
	CreatedAt      time.Time
}

// Budget periods.
const (
	BudgetPeriodDaily   = "daily"
	BudgetPeriodWeekly  = "weekly"
	BudgetPeriodMonthly = "monthly"
)

// Budget types the core tracks (spec.md line 50: "spend, API calls, orders").
const (
	BudgetTypeSpend    = "spend"
	BudgetTypeAPICalls = "api_calls"
	BudgetTypeOrders   = "orders"
)

// Budget is a circuit breaker over a quota-limited resource.
type Budget struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	StoreID  *uuid.UUID
	Type     string
	Period   string
	Limit    float64
	Current  float64
	ResetAt  time.Time
	IsFrozen bool
}

// Platform identifiers the gateway recognizes.
const (
	PlatformShopify  = "shopify"
	PlatformEtsy     = "etsy"
	PlatformPrintify = "printify"
	PlatformAmazonSP = "amazon_sp_api"
	PlatformGumroad  = "gumroad"
	PlatformAmazonKDP = "amazon_kdp"
)

// PlatformStore is one configured connection to one external platform. It is
// named PlatformStore (not Store) to avoid colliding with this package's
// Store type, the persistence-layer aggregate.
type PlatformStore struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Platform         string
	Credentials      []byte // sealed blob; see internal/crypto
	RateLimitState   json.RawMessage
	RateLimitVersion int
	LastSyncedAt     *time.Time
	IsActive         bool
}

// AuditEntry is an append-only record of a state transition.
type AuditEntry struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ActorID      *string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	OldValue     json.RawMessage
	NewValue     json.RawMessage
	Metadata     json.RawMessage
	Tags         []string
	ReceivedAt   time.Time
}

// Controlled audit tag vocabulary (spec.md §4.7).
const (
	TagDataModification = "data_modification"
	TagAccessControl    = "access_control"
	TagAuthentication   = "authentication"
	TagRateLimiting     = "rate_limiting"
	TagSecurity         = "security"
	TagWebhook          = "webhook"
	TagAutomation       = "automation"
	TagReconciliation   = "reconciliation"
	TagDataIntegrity    = "data_integrity"
	TagApproval         = "approval"
)

// Listing is the local representation of a product as published to a
// specific store (spec.md GLOSSARY). The Reconciliation Engine compares
// these against the platform's remote resources.
type Listing struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	StoreID    uuid.UUID
	ExternalID *string
	SKU        string
	Title      string
	Quantity   int
	Price      float64
	Status     string
	UpdatedAt  time.Time
}

// Discrepancy severities (spec.md §4.5).
const (
	DiscrepancySeverityLow      = "low"
	DiscrepancySeverityMedium   = "medium"
	DiscrepancySeverityHigh     = "high"
	DiscrepancySeverityCritical = "critical"
)

// Discrepancy kinds (spec.md §4.5).
const (
	DiscrepancyMissingLocal  = "missing_local"
	DiscrepancyMissingRemote = "missing_remote"
	DiscrepancyInventoryDrift = "inventory_drift"
	DiscrepancyPriceDrift    = "price_drift"
	DiscrepancyDataMismatch  = "data_mismatch"
)

// Discrepancy is one drift finding from a reconciliation run. Discrepancies
// are not persisted as their own table — they are carried inline on the
// Approval payload for high/critical severity findings and logged via the
// audit entry for a full run (spec.md §4.5 is explicit that reconciliation
// is "side-effect-free on the primary data").
type Discrepancy struct {
	Kind         string  `json:"kind"`
	Severity     string  `json:"severity"`
	ExternalID   string  `json:"external_id"`
	LocalValue   float64 `json:"local_value,omitempty"`
	RemoteValue  float64 `json:"remote_value,omitempty"`
	Detail       string  `json:"detail,omitempty"`
}
