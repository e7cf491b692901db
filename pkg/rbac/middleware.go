package rbac

import (
	"context"
	"net/http"

	"github.com/secopshq/console/pkg/contextkeys"
)

// WithAccess stores the member's access state in the context. The access
// middleware assembles it once per request; enforcement middleware and
// the gate/nav handlers read it back.
func WithAccess(ctx context.Context, access Access) context.Context {
	return contextkeys.WithAccess(ctx, access)
}

// AccessFromContext retrieves the member's access state. The zero Access
// (no permissions, no role) is returned when none was attached, so every
// check downstream fails closed.
func AccessFromContext(ctx context.Context) (Access, bool) {
	access, ok := ctx.Value(contextkeys.AccessKey).(Access)
	return access, ok
}

// RequirePermission enforces a single permission on a route. The UI's
// disable-mode gates render the same permission as a disabled control;
// this middleware guarantees a bypassed click can still not reach the
// handler.
func RequirePermission(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok {
				forbidden(w, "authentication required")
				return
			}
			if !access.Can(p) {
				forbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission enforces that at least one of the listed
// permissions is granted.
func RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok || !access.CanAny(perms...) {
				forbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAllPermissions enforces that every listed permission is granted.
func RequireAllPermissions(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok || !access.CanAll(perms...) {
				forbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole enforces an exact tenant role. Reserved for deliberately
// role-gated operations such as tenant deletion.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok || !access.IsRole(role) {
				forbidden(w, "required role not held")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMinRole enforces a minimum tenant role by hierarchy rank.
func RequireMinRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok || !access.IsAtLeast(role) {
				forbidden(w, "required role not held")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
