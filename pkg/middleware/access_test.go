package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/console/pkg/auth"
	"github.com/secopshq/console/pkg/contextkeys"
	"github.com/secopshq/console/pkg/rbac"
)

// staticSource serves a fixed state for every member.
type staticSource struct {
	state rbac.SyncState
}

func (s staticSource) State(ctx context.Context, tenantID, userID int64) rbac.SyncState {
	return s.state
}

func withClaims(r *http.Request, claims auth.SessionClaims) *http.Request {
	return r.WithContext(contextkeys.WithSession(r.Context(), claims))
}

func TestAccessMiddlewareBuildsAccess(t *testing.T) {
	resolver := rbac.NewResolver(staticSource{state: rbac.SyncState{
		Permissions: []rbac.Permission{rbac.PermScansRun},
	}})
	m := NewAccessMiddleware(resolver)

	var access rbac.Access
	var found bool
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, found = rbac.AccessFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), auth.SessionClaims{
		UserID: 42, TenantID: 1, TenantRole: rbac.RoleMember,
		Permissions: []rbac.Permission{rbac.PermAssetsRead},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, found)
	// Live set wins over the login-time claims.
	assert.True(t, access.Can(rbac.PermScansRun))
	assert.False(t, access.Can(rbac.PermAssetsRead))
	assert.True(t, access.IsRole(rbac.RoleMember))
	assert.False(t, access.Loading())
}

func TestAccessMiddlewareClaimsWhileLoading(t *testing.T) {
	resolver := rbac.NewResolver(staticSource{state: rbac.SyncState{Loading: true}})
	m := NewAccessMiddleware(resolver)

	var access rbac.Access
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, _ = rbac.AccessFromContext(r.Context())
	}))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), auth.SessionClaims{
		UserID: 42, TenantID: 1, TenantRole: rbac.RoleMember,
		Permissions: []rbac.Permission{rbac.PermAssetsRead},
	})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, access.Loading())
	assert.True(t, access.Can(rbac.PermAssetsRead))
}

func TestAccessMiddlewareNoClaimsPassesThrough(t *testing.T) {
	m := NewAccessMiddleware(rbac.NewResolver(staticSource{}))

	var found bool
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = rbac.AccessFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, found)
}

func tenantGuardRouter() (*mux.Router, *bool) {
	reached := false
	router := mux.NewRouter()
	router.Handle("/tenants/{tenant_id}/things", TenantGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})))
	return router, &reached
}

func TestTenantGuardMatch(t *testing.T) {
	router, reached := tenantGuardRouter()

	req := withClaims(httptest.NewRequest(http.MethodGet, "/tenants/1/things", nil), auth.SessionClaims{TenantID: 1, UserID: 42})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *reached)
}

func TestTenantGuardMismatch(t *testing.T) {
	router, reached := tenantGuardRouter()

	req := withClaims(httptest.NewRequest(http.MethodGet, "/tenants/2/things", nil), auth.SessionClaims{TenantID: 1, UserID: 42})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, *reached)
}

func TestTenantGuardUnauthenticated(t *testing.T) {
	router, _ := tenantGuardRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/1/things", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantGuardInvalidID(t *testing.T) {
	router, _ := tenantGuardRouter()

	req := withClaims(httptest.NewRequest(http.MethodGet, "/tenants/abc/things", nil), auth.SessionClaims{TenantID: 1})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
