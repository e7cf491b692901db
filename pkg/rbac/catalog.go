package rbac

import "strings"

// Permission identifies one grantable capability. Permissions follow the
// convention "module[:subfeature]:action" (e.g. "assets:groups:write") but
// are treated as opaque keys everywhere except label derivation.
type Permission string

// Asset inventory permissions
const (
	PermAssetsRead        Permission = "assets:read"
	PermAssetsWrite       Permission = "assets:write"
	PermAssetsDelete      Permission = "assets:delete"
	PermAssetGroupsRead   Permission = "assets:groups:read"
	PermAssetGroupsWrite  Permission = "assets:groups:write"
	PermAssetGroupsDelete Permission = "assets:groups:delete"
	PermAssetTagsWrite    Permission = "assets:tags:write"
)

// Scan permissions
const (
	PermScansRead           Permission = "scans:read"
	PermScansRun            Permission = "scans:run"
	PermScansCancel         Permission = "scans:cancel"
	PermScanSchedulesRead   Permission = "scans:schedules:read"
	PermScanSchedulesWrite  Permission = "scans:schedules:write"
	PermScanSchedulesDelete Permission = "scans:schedules:delete"
)

// Finding permissions
const (
	PermFindingsRead   Permission = "findings:read"
	PermFindingsTriage Permission = "findings:triage"
	PermFindingsAssign Permission = "findings:assign"
	PermFindingsExport Permission = "findings:export"
)

// Report permissions
const (
	PermReportsRead          Permission = "reports:read"
	PermReportsGenerate      Permission = "reports:generate"
	PermReportsExport        Permission = "reports:export"
	PermReportsDelete        Permission = "reports:delete"
	PermReportTemplatesRead  Permission = "reports:templates:read"
	PermReportTemplatesWrite Permission = "reports:templates:write"
)

// Team management permissions
const (
	PermTeamRead        Permission = "team:read"
	PermTeamInvite      Permission = "team:invite"
	PermTeamRemove      Permission = "team:remove"
	PermTeamRolesAssign Permission = "team:roles:assign"
)

// Custom role permissions
const (
	PermRolesRead   Permission = "roles:read"
	PermRolesWrite  Permission = "roles:write"
	PermRolesDelete Permission = "roles:delete"
)

// Integration permissions
const (
	PermIntegrationsRead   Permission = "integrations:read"
	PermIntegrationsWrite  Permission = "integrations:write"
	PermIntegrationsDelete Permission = "integrations:delete"
	PermReposRead          Permission = "integrations:repos:read"
	PermReposImport        Permission = "integrations:repos:import"
	PermReposRemove        Permission = "integrations:repos:remove"
)

// Tenant settings permissions
const (
	PermSettingsRead       Permission = "settings:read"
	PermSettingsWrite      Permission = "settings:write"
	PermSettingsSSORead    Permission = "settings:sso:read"
	PermSettingsSSOWrite   Permission = "settings:sso:write"
	PermNotificationsRead  Permission = "settings:notifications:read"
	PermNotificationsWrite Permission = "settings:notifications:write"
)

// Audit and licensing permissions
const (
	PermAuditRead       Permission = "audit:read"
	PermAuditExport     Permission = "audit:export"
	PermTenantRead      Permission = "tenant:read"
	PermTenantWrite     Permission = "tenant:write"
	PermLicensingRead   Permission = "licensing:read"
	PermLicensingManage Permission = "licensing:manage"
)

// AllPermissions returns every permission the catalog recognizes, in a
// stable order suitable for seeding and API listings.
func AllPermissions() []Permission {
	return []Permission{
		PermAssetsRead, PermAssetsWrite, PermAssetsDelete,
		PermAssetGroupsRead, PermAssetGroupsWrite, PermAssetGroupsDelete,
		PermAssetTagsWrite,
		PermScansRead, PermScansRun, PermScansCancel,
		PermScanSchedulesRead, PermScanSchedulesWrite, PermScanSchedulesDelete,
		PermFindingsRead, PermFindingsTriage, PermFindingsAssign, PermFindingsExport,
		PermReportsRead, PermReportsGenerate, PermReportsExport, PermReportsDelete,
		PermReportTemplatesRead, PermReportTemplatesWrite,
		PermTeamRead, PermTeamInvite, PermTeamRemove, PermTeamRolesAssign,
		PermRolesRead, PermRolesWrite, PermRolesDelete,
		PermIntegrationsRead, PermIntegrationsWrite, PermIntegrationsDelete,
		PermReposRead, PermReposImport, PermReposRemove,
		PermSettingsRead, PermSettingsWrite,
		PermSettingsSSORead, PermSettingsSSOWrite,
		PermNotificationsRead, PermNotificationsWrite,
		PermAuditRead, PermAuditExport,
		PermTenantRead, PermTenantWrite,
		PermLicensingRead, PermLicensingManage,
	}
}

// catalog is the membership index backing IsValidPermission.
var catalog = func() map[Permission]struct{} {
	m := make(map[Permission]struct{})
	for _, p := range AllPermissions() {
		m[p] = struct{}{}
	}
	return m
}()

// IsValidPermission reports whether p is a member of the permission catalog.
// Unknown identifiers are a configuration smell, not a runtime error.
func IsValidPermission(p Permission) bool {
	_, ok := catalog[p]
	return ok
}

// permissionLabels holds curated display labels. Permissions without an
// entry fall back to a label derived from the identifier itself.
var permissionLabels = map[Permission]string{
	PermAssetsRead:        "View assets",
	PermAssetsWrite:       "Manage assets",
	PermAssetsDelete:      "Delete assets",
	PermAssetGroupsRead:   "View asset groups",
	PermAssetGroupsWrite:  "Manage asset groups",
	PermAssetGroupsDelete: "Delete asset groups",
	PermScansRead:         "View scans",
	PermScansRun:          "Run scans",
	PermScansCancel:       "Cancel scans",
	PermFindingsRead:      "View findings",
	PermFindingsTriage:    "Triage findings",
	PermFindingsExport:    "Export findings",
	PermReportsRead:       "View reports",
	PermReportsGenerate:   "Generate reports",
	PermTeamRead:          "View team members",
	PermTeamInvite:        "Invite team members",
	PermTeamRemove:        "Remove team members",
	PermRolesRead:         "View roles",
	PermRolesWrite:        "Manage roles",
	PermReposImport:       "Import repositories",
	PermSettingsWrite:     "Manage tenant settings",
	PermAuditRead:         "View audit log",
	PermLicensingManage:   "Manage licensing",
}

// PermissionLabel returns a human-readable label for a permission. Curated
// labels win; anything else, including identifiers that are not in the
// catalog at all, degrades to title-casing the identifier segments. It
// never fails on malformed input.
func PermissionLabel(p Permission) string {
	if label, ok := permissionLabels[p]; ok {
		return label
	}
	segments := strings.Split(string(p), ":")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		parts = append(parts, strings.ToUpper(seg[:1])+seg[1:])
	}
	if len(parts) == 0 {
		return string(p)
	}
	return strings.Join(parts, " ")
}
