package sso

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/audit"
	"github.com/secopshq/console/pkg/auth"
	"github.com/secopshq/console/pkg/httputil"
	"github.com/secopshq/console/pkg/middleware"
	"github.com/secopshq/console/pkg/observability"
)

const (
	stateCookieName     = "sso_state"
	returnURLCookieName = "sso_return_url"
	stateCookieMaxAge   = 600
)

// Handlers serves SSO provider administration and the login flow.
type Handlers struct {
	storage     *Storage
	factory     *ProviderFactory
	provisioner *Provisioner
	sessions    *auth.SessionStore
	logger      *observability.Logger
}

// NewHandlers creates the SSO handlers.
func NewHandlers(storage *Storage, factory *ProviderFactory, provisioner *Provisioner, sessions *auth.SessionStore, logger *observability.Logger) *Handlers {
	return &Handlers{
		storage:     storage,
		factory:     factory,
		provisioner: provisioner,
		sessions:    sessions,
		logger:      logger.WithField("component", "sso"),
	}
}

// RegisterAdminRoutes registers the provider configuration routes.
// The router is expected to already enforce authentication and the
// integrations permissions.
func (h *Handlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/sso/providers", h.listProviders).Methods(http.MethodGet)
	router.HandleFunc("/tenants/{tenant_id}/sso/providers", h.createProvider).Methods(http.MethodPost)
	router.HandleFunc("/tenants/{tenant_id}/sso/providers/{name}", h.getProvider).Methods(http.MethodGet)
	router.HandleFunc("/tenants/{tenant_id}/sso/providers/{name}", h.updateProvider).Methods(http.MethodPut)
	router.HandleFunc("/tenants/{tenant_id}/sso/providers/{name}", h.deleteProvider).Methods(http.MethodDelete)
}

// RegisterAuthRoutes registers the unauthenticated login flow routes.
func (h *Handlers) RegisterAuthRoutes(router *mux.Router) {
	router.HandleFunc("/auth/sso/{tenant_id}/{provider}/login", h.initiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/auth/sso/{tenant_id}/{provider}/callback", h.handleCallback).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/auth/sso/logout", h.logout).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/sso/metadata/{tenant_id}/{provider}", h.samlMetadata).Methods(http.MethodGet)
}

func (h *Handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	providers, err := h.storage.ListProviders(r.Context(), tenantID, enabledOnly)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	for _, p := range providers {
		sanitizeProvider(p)
	}
	httputil.WriteSuccess(w, providers)
}

func (h *Handlers) createProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var config ProviderConfig
	if !httputil.ParseJSONOrError(w, r, &config) {
		return
	}
	config.TenantID = tenantID

	if config.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if config.ProviderType == "" {
		httputil.WriteBadRequest(w, "provider_type is required")
		return
	}
	if config.AttributeMapping == (AttributeMap{}) {
		config.AttributeMapping = PresetAttributeMap(config.ProviderName)
	}

	exists, err := h.storage.ProviderExists(r.Context(), tenantID, config.Name)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if exists {
		httputil.WriteConflict(w, "provider with this name already exists")
		return
	}

	if !h.validateProvider(w, r, &config) {
		return
	}

	if err := h.storage.CreateProvider(r.Context(), &config); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"provider":  config.Name,
		"type":      config.ProviderType,
	}).Info("sso provider created")
	recordProviderEvent(r, audit.EventSSOProviderCreate, tenantID, strconv.FormatInt(config.ID, 10), config.Name)

	sanitizeProvider(&config)
	httputil.WriteCreated(w, config)
}

func (h *Handlers) getProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	name := mux.Vars(r)["name"]

	config, err := h.storage.GetProvider(r.Context(), tenantID, name)
	if errors.Is(err, ErrProviderNotFound) {
		httputil.WriteNotFoundError(w, "provider not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	sanitizeProvider(config)
	httputil.WriteSuccess(w, config)
}

func (h *Handlers) updateProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	name := mux.Vars(r)["name"]

	existing, err := h.storage.GetProvider(r.Context(), tenantID, name)
	if errors.Is(err, ErrProviderNotFound) {
		httputil.WriteNotFoundError(w, "provider not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	var config ProviderConfig
	if !httputil.ParseJSONOrError(w, r, &config) {
		return
	}

	// Identity is fixed; only the configuration may change.
	config.ID = existing.ID
	config.TenantID = existing.TenantID
	config.Name = existing.Name
	if config.AttributeMapping == (AttributeMap{}) {
		config.AttributeMapping = existing.AttributeMapping
	}

	if !h.validateProvider(w, r, &config) {
		return
	}

	if err := h.storage.UpdateProvider(r.Context(), &config); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	recordProviderEvent(r, audit.EventSSOProviderUpdate, tenantID, strconv.FormatInt(config.ID, 10), config.Name)

	sanitizeProvider(&config)
	httputil.WriteSuccess(w, config)
}

func (h *Handlers) deleteProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	name := mux.Vars(r)["name"]

	err := h.storage.DeleteProvider(r.Context(), tenantID, name)
	if errors.Is(err, ErrProviderNotFound) {
		httputil.WriteNotFoundError(w, "provider not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	recordProviderEvent(r, audit.EventSSOProviderDelete, tenantID, "", name)
	httputil.WriteNoContent(w)
}

// recordProviderEvent audits a provider configuration change.
func recordProviderEvent(r *http.Request, eventType audit.EventType, tenantID int64, resourceID, name string) {
	event := audit.NewEvent(eventType, audit.StatusSuccess).
		WithRequest(r).
		WithResource(audit.ResourceProvider, resourceID, name)
	if claims, ok := middleware.GetSessionClaims(r); ok {
		event.WithActor(claims.Subject, claims.UserID, claims.TenantID)
	}
	// Scope to the tenant that owns the provider.
	event.TenantID = &tenantID
	audit.Record(r.Context(), event)
}

// validateProvider instantiates the provider to surface configuration
// errors before anything is stored. SAML validation is offline; OIDC
// runs issuer discovery.
func (h *Handlers) validateProvider(w http.ResponseWriter, r *http.Request, config *ProviderConfig) bool {
	provider, err := h.factory.CreateProvider(r.Context(), config)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid provider config: "+err.Error())
		return false
	}
	if err := provider.ValidateConfig(); err != nil {
		httputil.WriteBadRequest(w, "invalid provider config: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	config, provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}
	if !config.Enabled {
		httputil.WriteForbidden(w, "provider is disabled")
		return
	}

	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	setTempCookie(w, stateCookieName, state)
	if returnURL := r.URL.Query().Get("return_url"); returnURL != "" {
		setTempCookie(w, returnURLCookieName, returnURL)
	}

	if err := provider.InitiateLogin(w, r, state); err != nil {
		httputil.WriteInternalError(w, err)
	}
}

func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	config, provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		httputil.WriteBadRequest(w, "missing state cookie")
		return
	}
	state := r.URL.Query().Get("state")
	if r.Method == http.MethodPost {
		// SAML carries the state as RelayState.
		state = r.FormValue("RelayState")
	}
	if state == "" || state != stateCookie.Value {
		httputil.WriteBadRequest(w, "invalid state parameter")
		return
	}

	ssoUser, err := provider.HandleCallback(w, r)
	if err != nil {
		h.logger.WithError(err).WithField("provider", config.Name).Warn("sso callback rejected")
		failure := audit.NewEvent(audit.EventAuthLoginFailed, audit.StatusFailure).WithRequest(r).
			WithMetadata("provider", config.Name)
		failure.TenantID = &config.TenantID
		failure.ErrorMessage = err.Error()
		audit.Record(r.Context(), failure)
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}

	_, claims, err := h.provisioner.Login(r.Context(), ssoUser, config)
	if err != nil {
		switch {
		case errors.Is(err, ErrProvisioningDisabled), errors.Is(err, ErrNoRoleMapped):
			h.logger.WithError(err).WithFields(map[string]interface{}{
				"provider":    config.Name,
				"external_id": ssoUser.ExternalID,
			}).Warn("sso login refused")
			refused := audit.NewEvent(audit.EventAuthLoginFailed, audit.StatusDenied).WithRequest(r).
				WithMetadata("provider", config.Name).
				WithMetadata("external_id", ssoUser.ExternalID)
			refused.TenantID = &config.TenantID
			refused.Subject = ssoUser.Email
			refused.ErrorMessage = err.Error()
			audit.Record(r.Context(), refused)
			httputil.WriteForbidden(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	sessionID, err := h.sessions.Create(r.Context(), claims)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	audit.Record(r.Context(), audit.NewEvent(audit.EventAuthLogin, audit.StatusSuccess).
		WithRequest(r).
		WithActor(claims.Subject, claims.UserID, claims.TenantID).
		WithMetadata("provider", config.Name))

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	clearCookie(w, stateCookieName)

	returnURL := "/"
	if returnCookie, err := r.Cookie(returnURLCookieName); err == nil && returnCookie.Value != "" {
		returnURL = returnCookie.Value
		clearCookie(w, returnURLCookieName)
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		event := audit.NewEvent(audit.EventAuthLogout, audit.StatusSuccess).WithRequest(r)
		if claims, err := h.sessions.Get(r.Context(), cookie.Value); err == nil {
			event.WithActor(claims.Subject, claims.UserID, claims.TenantID)
		}
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.WithError(err).Warn("failed to destroy session")
		}
		clearCookie(w, middleware.SessionCookieName)
		audit.Record(r.Context(), event)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) samlMetadata(w http.ResponseWriter, r *http.Request) {
	config, provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}
	if config.ProviderType != ProviderTypeSAML {
		httputil.WriteBadRequest(w, "provider is not SAML")
		return
	}

	samlProvider, ok := provider.(*SAMLProvider)
	if !ok {
		httputil.WriteInternalError(w, errors.New("provider is not SAML"))
		return
	}
	metadata, err := samlProvider.Metadata()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write(metadata)
}

func (h *Handlers) loadProvider(w http.ResponseWriter, r *http.Request) (*ProviderConfig, Provider, bool) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return nil, nil, false
	}
	name := mux.Vars(r)["provider"]

	config, err := h.storage.GetProvider(r.Context(), tenantID, name)
	if errors.Is(err, ErrProviderNotFound) {
		httputil.WriteNotFoundError(w, "provider not found")
		return nil, nil, false
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}

	provider, err := h.factory.CreateProvider(r.Context(), config)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}
	return config, provider, true
}

func setTempCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   stateCookieMaxAge,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, MaxAge: -1, Path: "/"})
}

// sanitizeProvider blanks secrets before a config leaves the API.
func sanitizeProvider(config *ProviderConfig) {
	if config.SAMLConfig != nil {
		config.SAMLConfig.PrivateKey = ""
	}
	if config.OIDCConfig != nil {
		config.OIDCConfig.ClientSecret = ""
	}
}
