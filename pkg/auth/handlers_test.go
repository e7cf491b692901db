package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/console/pkg/contextkeys"
	"github.com/secopshq/console/pkg/rbac"
)

func setupTokenHandlers(t *testing.T) (*mux.Router, *TokenStore) {
	t.Helper()
	store := setupTokenStore(t)
	router := mux.NewRouter()
	NewTokenHandlers(store).RegisterRoutes(router)
	return router, store
}

func authedRequest(method, path string, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	claims := SessionClaims{Subject: "ada@example.com", UserID: 10, TenantID: 1, TenantRole: rbac.RoleAdmin}
	return r.WithContext(contextkeys.WithSession(r.Context(), claims))
}

func TestCreateTokenHandler(t *testing.T) {
	router, _ := setupTokenHandlers(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/me/tokens", `{"name":"ci","expires_in_days":30}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Token, TokenPrefix))
	assert.Equal(t, "ci", resp.Record.Name)
	assert.NotNil(t, resp.Record.ExpiresAt)
	assert.Empty(t, resp.Record.TokenHash)
}

func TestCreateTokenHandlerValidation(t *testing.T) {
	router, _ := setupTokenHandlers(t)

	for _, body := range []string{
		`{"name":""}`,
		`{"name":"ci","expires_in_days":-1}`,
		`{"name":"ci","expires_in_days":9999}`,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/me/tokens", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCreateTokenHandlerRequiresAuth(t *testing.T) {
	router, _ := setupTokenHandlers(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/me/tokens", bytes.NewBufferString(`{"name":"ci"}`))
	r.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListTokensHandler(t *testing.T) {
	router, store := setupTokenHandlers(t)
	ctx := authedRequest(http.MethodGet, "/", "").Context()

	_, _, err := store.CreateToken(ctx, 1, 10, "first", "", nil)
	require.NoError(t, err)
	_, _, err = store.CreateToken(ctx, 1, 99, "other user", "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/me/tokens", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tokens []*APIToken `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tokens, 1)
	assert.Equal(t, "first", resp.Tokens[0].Name)
}

func TestRevokeTokenHandler(t *testing.T) {
	router, store := setupTokenHandlers(t)
	ctx := authedRequest(http.MethodGet, "/", "").Context()

	record, _, err := store.CreateToken(ctx, 1, 10, "ci", "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/me/tokens/1?reason=leaked", ""))
	require.Equal(t, http.StatusNoContent, rec.Code)

	tokens, err := store.ListUserTokens(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Revoked())
	assert.Equal(t, "leaked", tokens[0].RevokeReason)
	assert.Equal(t, record.ID, tokens[0].ID)
}

func TestRevokeTokenHandlerOwnershipScoped(t *testing.T) {
	router, store := setupTokenHandlers(t)
	ctx := authedRequest(http.MethodGet, "/", "").Context()

	// Belongs to another user; the caller must get a 404, not a revoke.
	_, _, err := store.CreateToken(ctx, 1, 99, "not mine", "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/me/tokens/1", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tokens, err := store.ListUserTokens(ctx, 1, 99)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.False(t, tokens[0].Revoked())
}
