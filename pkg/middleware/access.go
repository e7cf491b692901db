package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/httputil"
	"github.com/secopshq/console/pkg/rbac"
)

// AccessMiddleware assembles the per-request access state: the live
// permission resolution for the authenticated member combined with the
// tenant role from their claims. Handlers and enforcement middleware
// downstream read it via rbac.AccessFromContext.
type AccessMiddleware struct {
	resolver *rbac.Resolver
}

// NewAccessMiddleware creates the access assembly middleware.
func NewAccessMiddleware(resolver *rbac.Resolver) *AccessMiddleware {
	return &AccessMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with access assembly. Requests without
// claims pass through unchanged; enforcement rejects them later if the
// route requires access.
func (m *AccessMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetSessionClaims(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		resolution := m.resolver.Snapshot(r.Context(), claims.TenantID, claims.UserID, claims.Permissions)
		access := rbac.NewAccess(resolution, claims.TenantRole)

		ctx := rbac.WithAccess(r.Context(), access)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantGuard rejects requests whose {tenant_id} path segment does not
// match the tenant of the authenticated claims. Switching tenants means
// logging into the other tenant and starting a fresh resolution cycle,
// never reusing this one's permissions.
func TenantGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := mux.Vars(r)["tenant_id"]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid tenant id")
			return
		}

		claims, ok := GetSessionClaims(r)
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if claims.TenantID != tenantID {
			httputil.WriteForbidden(w, "not a member of this tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}
