package tenant

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// HeaderName is the request header carrying the tenant id.
const HeaderName = "X-Tenant-ID"

// Middleware resolves the tenant id from the X-Tenant-ID header and stores
// it in the request context. Requests without a valid header are rejected
// before reaching any domain handler.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderName)
			if raw == "" {
				http.Error(w, `{"error":"unauthorized","message":"missing X-Tenant-ID header"}`, http.StatusUnauthorized)
				return
			}

			id, err := uuid.Parse(raw)
			if err != nil {
				logger.Warn("rejecting request with malformed tenant id", "value", raw)
				http.Error(w, `{"error":"unauthorized","message":"malformed X-Tenant-ID header"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}
