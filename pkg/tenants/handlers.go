package tenants

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/audit"
	"github.com/secopshq/console/pkg/httputil"
	"github.com/secopshq/console/pkg/middleware"
	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
)

// Handlers exposes tenant management over HTTP.
type Handlers struct {
	service   *Service
	licensing *modules.Service
	notifier  rbac.ChangeNotifier
}

// NewHandlers creates tenant HTTP handlers. licensing and notifier may
// be nil in tests.
func NewHandlers(service *Service, licensing *modules.Service, notifier rbac.ChangeNotifier) *Handlers {
	return &Handlers{service: service, licensing: licensing, notifier: notifier}
}

// record attributes and audits a tenant change.
func record(r *http.Request, event *audit.Event, tenantID int64) {
	event.WithRequest(r)
	if claims, ok := middleware.GetSessionClaims(r); ok {
		event.WithActor(claims.Subject, claims.UserID, claims.TenantID)
	}
	event.TenantID = &tenantID
	audit.Record(r.Context(), event)
}

// RegisterRoutes attaches the tenant routes to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tenants", h.createTenant).Methods(http.MethodPost)
	r.HandleFunc("/me/tenants", h.listMyTenants).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}", h.getTenant).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}", h.updateTenant).Methods(http.MethodPatch)
	r.HandleFunc("/tenants/{tenant_id}/plan", h.setPlan).Methods(http.MethodPut)
	r.HandleFunc("/tenants/{tenant_id}/members", h.listMembers).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}/members/{user_id}", h.removeMember).Methods(http.MethodDelete)
	r.HandleFunc("/tenants/{tenant_id}/invitations", h.createInvitation).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/invitations", h.listInvitations).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}/invitations/{invitation_id}", h.revokeInvitation).Methods(http.MethodDelete)
	r.HandleFunc("/invitations/accept", h.acceptInvitation).Methods(http.MethodPost)
}

func (h *Handlers) createTenant(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetSessionClaims(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.PlanTier != "" && !IsValidPlanTier(req.PlanTier) {
		httputil.WriteBadRequest(w, "unknown plan tier")
		return
	}

	tenant, err := h.service.CreateTenant(r.Context(), &req, claims.UserID, claims.Subject)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	record(r, audit.NewEvent(audit.EventTenantCreate, audit.StatusSuccess).
		WithResource(audit.ResourceTenant, strconv.FormatInt(tenant.ID, 10), tenant.Name), tenant.ID)
	httputil.WriteCreated(w, tenant)
}

func (h *Handlers) listMyTenants(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetSessionClaims(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tenants, err := h.service.ListTenantsForUser(r.Context(), claims.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"tenants": tenants})
}

func (h *Handlers) getTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	tenant, err := h.service.GetTenant(r.Context(), tenantID)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "tenant not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}

func (h *Handlers) updateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req UpdateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.service.UpdateTenant(r.Context(), tenantID, &req); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "tenant not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	record(r, audit.NewEvent(audit.EventTenantUpdate, audit.StatusSuccess).
		WithResource(audit.ResourceTenant, strconv.FormatInt(tenantID, 10), ""), tenantID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) setPlan(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req struct {
		PlanTier PlanTier `json:"plan_tier"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !IsValidPlanTier(req.PlanTier) {
		httputil.WriteBadRequest(w, "unknown plan tier")
		return
	}

	if err := h.service.SetPlanTier(r.Context(), tenantID, req.PlanTier); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "tenant not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	// The navigation licensing axis must see the new plan immediately.
	if h.licensing != nil {
		h.licensing.Invalidate(tenantID)
	}
	record(r, audit.NewEvent(audit.EventTenantPlanChange, audit.StatusSuccess).
		WithResource(audit.ResourceTenant, strconv.FormatInt(tenantID, 10), "").
		WithMetadata("plan_tier", string(req.PlanTier)), tenantID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) listMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

func (h *Handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), tenantID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "member not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	if h.notifier != nil {
		// The removed member's open sessions must lose access now, not at
		// the next cache refresh.
		_ = h.notifier.NotifyChange(r.Context(), tenantID, userID)
	}
	record(r, audit.NewEvent(audit.EventMemberRemove, audit.StatusSuccess).
		WithResource(audit.ResourceMember, strconv.FormatInt(userID, 10), ""), tenantID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) createInvitation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	claims, ok := middleware.GetSessionClaims(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Email string    `json:"email"`
		Role  rbac.Role `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	if !rbac.IsValidRole(req.Role) {
		httputil.WriteBadRequest(w, "role must be one of viewer, member, admin, owner")
		return
	}

	inv, err := h.service.CreateInvitation(r.Context(), tenantID, req.Email, req.Role, claims.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	record(r, audit.NewEvent(audit.EventInviteCreate, audit.StatusSuccess).
		WithResource(audit.ResourceInvite, strconv.FormatInt(inv.ID, 10), req.Email).
		WithMetadata("role", string(req.Role)), tenantID)
	httputil.WriteCreated(w, inv)
}

func (h *Handlers) listInvitations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	invitations, err := h.service.ListInvitations(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": invitations})
}

func (h *Handlers) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := h.service.RevokeInvitation(r.Context(), invitationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "invitation not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	record(r, audit.NewEvent(audit.EventInviteRevoke, audit.StatusSuccess).
		WithResource(audit.ResourceInvite, strconv.FormatInt(invitationID, 10), ""), tenantID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetSessionClaims(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	inv, err := h.service.AcceptInvitation(r.Context(), req.Token, claims.UserID, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "invitation not found")
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if h.notifier != nil {
		_ = h.notifier.NotifyChange(r.Context(), inv.TenantID, claims.UserID)
	}
	record(r, audit.NewEvent(audit.EventInviteAccept, audit.StatusSuccess).
		WithResource(audit.ResourceInvite, strconv.FormatInt(inv.ID, 10), "").
		WithMetadata("role", string(inv.Role)), inv.TenantID)
	inv.Token = ""
	httputil.WriteSuccess(w, inv)
}
