// Package tenant resolves and carries the tenant identity for a request.
// There is no authentication subsystem (spec.md Non-goals exclude login
// flows): every table carries its own tenant_id column and the caller is
// trusted to supply the right one via the X-Tenant-ID header.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const idKey contextKey = "tenant_id"

// NewContext stores a tenant id in the context.
func NewContext(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// FromContext extracts the tenant id from the context. Returns uuid.Nil if
// none is set.
func FromContext(ctx context.Context) uuid.UUID {
	v, _ := ctx.Value(idKey).(uuid.UUID)
	return v
}
