package rbac

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/audit"
	"github.com/secopshq/console/pkg/httputil"
)

// ChangeNotifier is told about RBAC edits so the live sync layer can push
// fresh permission sets to connected sessions. userID 0 means "every
// member of the tenant".
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, tenantID, userID int64) error
}

// Handlers exposes the RBAC catalog and role management over HTTP.
type Handlers struct {
	store    *Store
	notifier ChangeNotifier
	actor    audit.ActorFunc
}

// NewHandlers creates RBAC HTTP handlers. notifier and actor may be nil
// in tests.
func NewHandlers(store *Store, notifier ChangeNotifier, actor audit.ActorFunc) *Handlers {
	return &Handlers{store: store, notifier: notifier, actor: actor}
}

// record attributes and audits a role management change. The event is
// always scoped to the tenant whose roles changed.
func (h *Handlers) record(r *http.Request, event *audit.Event, tenantID int64) {
	event.WithRequest(r)
	if h.actor != nil {
		if actor, ok := h.actor(r); ok {
			event.WithActor(actor.Subject, actor.UserID, actor.TenantID)
		}
	}
	event.TenantID = &tenantID
	audit.Record(r.Context(), event)
}

// RegisterRoutes attaches the RBAC routes to the router. Enforcement
// middleware is applied by the caller when wiring the server.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/catalog/permissions", h.listCatalog).Methods(http.MethodGet)
	r.HandleFunc("/catalog/roles", h.listRoles).Methods(http.MethodGet)
	r.HandleFunc("/me/permissions", h.myPermissions).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}/roles", h.listCustomRoles).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}/roles", h.createCustomRole).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/roles/{role_id}/permissions", h.updateCustomRolePermissions).Methods(http.MethodPut)
	r.HandleFunc("/tenants/{tenant_id}/roles/{role_id}", h.deleteCustomRole).Methods(http.MethodDelete)
	r.HandleFunc("/tenants/{tenant_id}/members/{user_id}/role", h.setMemberRole).Methods(http.MethodPut)
}

// catalogEntry is one permission with its display label.
type catalogEntry struct {
	Permission Permission `json:"permission"`
	Label      string     `json:"label"`
}

func (h *Handlers) listCatalog(w http.ResponseWriter, r *http.Request) {
	perms := AllPermissions()
	entries := make([]catalogEntry, 0, len(perms))
	for _, p := range perms {
		entries = append(entries, catalogEntry{Permission: p, Label: PermissionLabel(p)})
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": entries})
}

// roleEntry describes one built-in role, including the default grants it
// would seed with. The defaults are reference data for provisioning UI;
// live grants come from the member's effective set.
type roleEntry struct {
	Role          Role         `json:"role"`
	Label         string       `json:"label"`
	Rank          int          `json:"rank"`
	DefaultGrants []Permission `json:"default_grants"`
}

func (h *Handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := AllRoles()
	entries := make([]roleEntry, 0, len(roles))
	for _, role := range roles {
		entries = append(entries, roleEntry{
			Role:          role,
			Label:         RoleLabel(role),
			Rank:          role.Rank(),
			DefaultGrants: DefaultRoleGrants(role),
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": entries})
}

func (h *Handlers) myPermissions(w http.ResponseWriter, r *http.Request) {
	access, ok := AccessFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions": access.Permissions(),
		"role":        access.Role(),
		"loading":     access.Loading(),
	})
}

func (h *Handlers) listCustomRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	roles, err := h.store.ListCustomRoles(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// createCustomRoleRequest is the payload for creating a custom role. An
// empty permission list starts from the base role's default grants.
type createCustomRoleRequest struct {
	Name        string       `json:"name"`
	BaseRole    Role         `json:"base_role"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
}

func (h *Handlers) createCustomRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req createCustomRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if !IsValidRole(req.BaseRole) {
		httputil.WriteBadRequest(w, "base_role must be one of viewer, member, admin, owner")
		return
	}
	perms := req.Permissions
	if len(perms) == 0 {
		perms = DefaultRoleGrants(req.BaseRole)
	}
	for _, p := range perms {
		if !IsValidPermission(p) {
			httputil.WriteBadRequest(w, "unknown permission: "+string(p))
			return
		}
	}

	role := &CustomRole{
		TenantID:    tenantID,
		Name:        req.Name,
		BaseRole:    req.BaseRole,
		Description: req.Description,
		Permissions: perms,
	}
	if err := h.store.CreateCustomRole(r.Context(), role); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.record(r, audit.NewEvent(audit.EventCustomRoleCreate, audit.StatusSuccess).
		WithResource(audit.ResourceRole, strconv.FormatInt(role.ID, 10), role.Name), tenantID)
	httputil.WriteCreated(w, role)
}

func (h *Handlers) updateCustomRolePermissions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	var req struct {
		Permissions []Permission `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	for _, p := range req.Permissions {
		if !IsValidPermission(p) {
			httputil.WriteBadRequest(w, "unknown permission: "+string(p))
			return
		}
	}

	if err := h.store.UpdateCustomRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "custom role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	// Pruning a custom role must reach live sessions; a stale UI here is
	// exactly the failure the resolver precedence exists to prevent.
	h.notify(r.Context(), tenantID, 0)
	h.record(r, audit.NewEvent(audit.EventCustomRoleUpdate, audit.StatusSuccess).
		WithResource(audit.ResourceRole, strconv.FormatInt(roleID, 10), ""), tenantID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) deleteCustomRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	if err := h.store.DeleteCustomRole(r.Context(), roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "custom role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.notify(r.Context(), tenantID, 0)
	h.record(r, audit.NewEvent(audit.EventCustomRoleDelete, audit.StatusSuccess).
		WithResource(audit.ResourceRole, strconv.FormatInt(roleID, 10), ""), tenantID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) setMemberRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		Role         Role   `json:"role"`
		CustomRoleID *int64 `json:"custom_role_id,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !IsValidRole(req.Role) {
		httputil.WriteBadRequest(w, "role must be one of viewer, member, admin, owner")
		return
	}

	grant := &MemberGrant{
		TenantID:     tenantID,
		UserID:       userID,
		Role:         req.Role,
		CustomRoleID: req.CustomRoleID,
	}
	if err := h.store.SetMemberGrant(r.Context(), grant); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.notify(r.Context(), tenantID, userID)
	h.record(r, audit.NewEvent(audit.EventRoleChange, audit.StatusSuccess).
		WithResource(audit.ResourceMember, strconv.FormatInt(userID, 10), "").
		WithMetadata("role", string(req.Role)), tenantID)
	httputil.WriteSuccess(w, grant)
}

func (h *Handlers) notify(ctx context.Context, tenantID, userID int64) {
	if h.notifier == nil {
		return
	}
	// Best effort: a missed notification is recovered by the periodic
	// sync refresh.
	_ = h.notifier.NotifyChange(ctx, tenantID, userID)
}
