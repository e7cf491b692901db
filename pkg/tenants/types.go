// Package tenants manages the customer tenants of the console: their
// plan, membership, and invitations. Creating a tenant seeds its role
// grants and licensed modules so a fresh tenant is usable immediately.
package tenants

import (
	"errors"
	"time"

	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
)

// PlanTier represents subscription plan tiers.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanTeam       PlanTier = "team"
	PlanEnterprise PlanTier = "enterprise"
)

// TenantStatus represents tenant lifecycle status.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDeleted   TenantStatus = "deleted"
)

// ErrNotFound is returned when a tenant, member, or invitation does not
// exist.
var ErrNotFound = errors.New("not found")

// Tenant represents one customer tenant.
type Tenant struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name"`
	Slug        string                 `json:"slug"`
	DisplayName string                 `json:"display_name"`
	Description string                 `json:"description,omitempty"`
	OwnerID     *int64                 `json:"owner_id,omitempty"`
	PlanTier    PlanTier               `json:"plan_tier"`
	Status      TenantStatus           `json:"status"`
	IsActive    bool                   `json:"is_active"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Member represents a tenant member joined with their user record and
// current role grant.
type Member struct {
	TenantID  int64     `json:"tenant_id"`
	UserID    int64     `json:"user_id"`
	Role      rbac.Role `json:"role"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	InvitedBy *int64    `json:"invited_by,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Invitation represents a pending invitation to join a tenant.
type Invitation struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenant_id"`
	Email      string     `json:"email"`
	Role       rbac.Role  `json:"role"`
	Token      string     `json:"token,omitempty"`
	InvitedBy  int64      `json:"invited_by"`
	InvitedAt  time.Time  `json:"invited_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *int64     `json:"accepted_by,omitempty"`
}

// CreateTenantRequest represents a request to create a tenant.
type CreateTenantRequest struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Description string                 `json:"description,omitempty"`
	PlanTier    PlanTier               `json:"plan_tier,omitempty"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// UpdateTenantRequest represents a partial tenant update.
type UpdateTenantRequest struct {
	DisplayName *string                `json:"display_name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// PlanModules maps a plan tier to the modules it licenses. Preview and
// beta modules are excluded on purpose: their navigation visibility is
// handled by release status, and granting them here would imply support.
func PlanModules(tier PlanTier) []modules.ID {
	switch tier {
	case PlanFree:
		return []modules.ID{modules.ModuleAssets, modules.ModuleFindings, modules.ModuleSettings}
	case PlanTeam:
		return []modules.ID{
			modules.ModuleAssets, modules.ModuleScans, modules.ModuleFindings,
			modules.ModuleReports, modules.ModuleTeam, modules.ModuleSettings,
		}
	case PlanEnterprise:
		return []modules.ID{
			modules.ModuleAssets, modules.ModuleScans, modules.ModuleFindings,
			modules.ModuleReports, modules.ModuleTeam, modules.ModuleIntegrations,
			modules.ModuleSettings, modules.ModuleAudit,
		}
	default:
		return nil
	}
}

// IsValidPlanTier reports whether the tier is known.
func IsValidPlanTier(tier PlanTier) bool {
	switch tier {
	case PlanFree, PlanTeam, PlanEnterprise:
		return true
	}
	return false
}
