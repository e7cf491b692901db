package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/audit"
	"github.com/secopshq/console/pkg/contextkeys"
	"github.com/secopshq/console/pkg/httputil"
)

// maxTokenLifetimeDays bounds how far out a token expiry may be set.
const maxTokenLifetimeDays = 365

// TokenHandlers exposes API token self-service over HTTP.
type TokenHandlers struct {
	tokens *TokenStore
}

// NewTokenHandlers creates the token handlers.
func NewTokenHandlers(tokens *TokenStore) *TokenHandlers {
	return &TokenHandlers{tokens: tokens}
}

// RegisterRoutes attaches the token routes. The router is expected to
// already enforce authentication.
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me/tokens", h.createToken).Methods(http.MethodPost)
	router.HandleFunc("/me/tokens", h.listTokens).Methods(http.MethodGet)
	router.HandleFunc("/me/tokens/{token_id}", h.revokeToken).Methods(http.MethodDelete)
}

func claimsFromRequest(r *http.Request) (SessionClaims, bool) {
	claims, ok := r.Context().Value(contextkeys.SessionKey).(SessionClaims)
	return claims, ok
}

// createTokenRequest is the payload for minting a token. Expiry is in
// days from now; zero means no expiry.
type createTokenRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
}

// createTokenResponse carries the plaintext value exactly once.
type createTokenResponse struct {
	Token  string    `json:"token"`
	Record *APIToken `json:"record"`
}

func (h *TokenHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > maxTokenLifetimeDays {
		httputil.WriteBadRequest(w, "expires_in_days must be between 0 and 365")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	record, token, err := h.tokens.CreateToken(r.Context(), claims.TenantID, claims.UserID, req.Name, req.Description, expiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	audit.Record(r.Context(), audit.NewEvent(audit.EventTokenCreate, audit.StatusSuccess).
		WithRequest(r).
		WithActor(claims.Subject, claims.UserID, claims.TenantID).
		WithResource(audit.ResourceToken, strconv.FormatInt(record.ID, 10), record.Name))

	httputil.WriteCreated(w, createTokenResponse{Token: token, Record: record})
}

func (h *TokenHandlers) listTokens(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tokens, err := h.tokens.ListUserTokens(r.Context(), claims.TenantID, claims.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"tokens": tokens})
}

func (h *TokenHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}
	reason := r.URL.Query().Get("reason")

	err := h.tokens.RevokeUserToken(r.Context(), claims.TenantID, claims.UserID, tokenID, reason)
	if errors.Is(err, ErrTokenNotFound) {
		httputil.WriteNotFoundError(w, "token not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	audit.Record(r.Context(), audit.NewEvent(audit.EventTokenRevoke, audit.StatusSuccess).
		WithRequest(r).
		WithActor(claims.Subject, claims.UserID, claims.TenantID).
		WithResource(audit.ResourceToken, strconv.FormatInt(tokenID, 10), ""))

	httputil.WriteNoContent(w)
}
