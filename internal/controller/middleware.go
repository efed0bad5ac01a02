// internal/controller/middleware.go
package controller

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// RequireTenant resolves the calling tenant from the X-Tenant-ID header set
// by the authentication layer in front of this service (session mechanics
// live there, not here) and rejects requests without one.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Tenant-ID")
		if raw == "" {
			http.Error(w, "missing tenant", http.StatusUnauthorized)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid tenant", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), tenantIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFromContext returns the tenant id placed by RequireTenant.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantIDKey).(int64)
	return id, ok
}
