package audit

import (
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	// Authentication
	EventAuthLogin       EventType = "auth.login"
	EventAuthLoginFailed EventType = "auth.login_failed"
	EventAuthLogout      EventType = "auth.logout"
	EventTokenCreate     EventType = "auth.token_create"
	EventTokenRevoke     EventType = "auth.token_revoke"

	// Authorization
	EventRoleChange       EventType = "rbac.role_change"
	EventRoleGrantsChange EventType = "rbac.role_grants_change"
	EventCustomRoleCreate EventType = "rbac.custom_role_create"
	EventCustomRoleUpdate EventType = "rbac.custom_role_update"
	EventCustomRoleDelete EventType = "rbac.custom_role_delete"
	EventAccessDenied     EventType = "rbac.access_denied"

	// Tenant administration
	EventTenantCreate     EventType = "tenant.create"
	EventTenantUpdate     EventType = "tenant.update"
	EventTenantPlanChange EventType = "tenant.plan_change"
	EventMemberAdd        EventType = "tenant.member_add"
	EventMemberRemove     EventType = "tenant.member_remove"
	EventInviteCreate     EventType = "tenant.invite_create"
	EventInviteAccept     EventType = "tenant.invite_accept"
	EventInviteRevoke     EventType = "tenant.invite_revoke"

	// Configuration
	EventSSOProviderCreate EventType = "config.sso_provider_create"
	EventSSOProviderUpdate EventType = "config.sso_provider_update"
	EventSSOProviderDelete EventType = "config.sso_provider_delete"
	EventModulesChange     EventType = "config.modules_change"
)

// EventStatus is the outcome of the audited action.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// ResourceType names the kind of resource an event touched.
type ResourceType string

const (
	ResourceUser     ResourceType = "user"
	ResourceToken    ResourceType = "token"
	ResourceRole     ResourceType = "role"
	ResourceTenant   ResourceType = "tenant"
	ResourceMember   ResourceType = "member"
	ResourceInvite   ResourceType = "invitation"
	ResourceProvider ResourceType = "sso_provider"
	ResourceModule   ResourceType = "module"
)

// Event is a single audit log entry.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	TenantID *int64 `json:"tenant_id,omitempty"`
	UserID   *int64 `json:"user_id,omitempty"`
	Subject  string `json:"subject,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes carries before/after snapshots for mutations.
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates.
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// SearchFilter narrows an audit log query. Zero values mean "any".
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	TenantID *int64
	UserID   *int64

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// Stats summarizes audit activity over a window.
type Stats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	UniqueUsers    int64                 `json:"unique_users"`
	FailedLogins   int64                 `json:"failed_logins"`
	AccessDenials  int64                 `json:"access_denials"`
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportJSON   ExportFormat = "json"
	ExportCSV    ExportFormat = "csv"
	ExportNDJSON ExportFormat = "ndjson"
)

// RetentionPolicy controls how long events are kept.
type RetentionPolicy struct {
	RetentionDays int
}

// DefaultRetentionPolicy keeps ninety days of events.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
