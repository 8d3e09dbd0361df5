package gateway

import (
	"fmt"
	"time"
)

// RateLimitedError means either the local bucket was empty or the platform
// returned a 429 (spec.md §4.3 / §7).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("gateway: rate limited, retry after %s", e.RetryAfter)
}

// Upstream4xxError wraps a non-retryable 4xx response from the platform.
type Upstream4xxError struct {
	StatusCode int
	Body       string
}

func (e *Upstream4xxError) Error() string {
	return fmt.Sprintf("gateway: upstream 4xx (%d): %s", e.StatusCode, e.Body)
}

// Upstream5xxError wraps a retryable 5xx response from the platform.
type Upstream5xxError struct {
	StatusCode int
	Body       string
}

func (e *Upstream5xxError) Error() string {
	return fmt.Sprintf("gateway: upstream 5xx (%d): %s", e.StatusCode, e.Body)
}

// CredentialsMissingError means the store has no usable credential (absent,
// unseal failure, or an OAuth2 refresh that failed).
type CredentialsMissingError struct {
	StoreID string
	Cause   error
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("gateway: credentials missing for store %s: %v", e.StoreID, e.Cause)
}

func (e *CredentialsMissingError) Unwrap() error { return e.Cause }

// NotFoundError means the store or target resource does not exist.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gateway: not found: %s", e.What)
}
