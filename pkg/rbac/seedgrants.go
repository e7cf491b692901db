package rbac

// This file is seed/reference data ONLY. It documents the default grant
// set a built-in role receives when a tenant is provisioned, and serves
// as the starting template when an admin creates a custom role. The
// resolver must never consult it at runtime: after an administrator
// prunes a custom role, falling back to these defaults would present
// stale, over-privileged UI. cmd/console-seed and the roles handlers are
// the only intended consumers.

// DefaultRoleGrants returns the permissions a built-in role is granted at
// tenant provisioning time.
func DefaultRoleGrants(r Role) []Permission {
	switch r {
	case RoleViewer:
		return []Permission{
			PermAssetsRead, PermAssetGroupsRead,
			PermScansRead, PermScanSchedulesRead,
			PermFindingsRead,
			PermReportsRead, PermReportTemplatesRead,
			PermTeamRead,
			PermIntegrationsRead, PermReposRead,
			PermTenantRead,
		}
	case RoleMember:
		return append(DefaultRoleGrants(RoleViewer),
			PermAssetsWrite, PermAssetGroupsWrite, PermAssetTagsWrite,
			PermScansRun, PermScansCancel, PermScanSchedulesWrite,
			PermFindingsTriage, PermFindingsAssign, PermFindingsExport,
			PermReportsGenerate, PermReportsExport,
			PermReposImport,
			PermSettingsRead, PermNotificationsRead,
		)
	case RoleAdmin:
		grants := make([]Permission, 0, len(AllPermissions()))
		for _, p := range AllPermissions() {
			if p == PermLicensingManage {
				continue
			}
			grants = append(grants, p)
		}
		return grants
	case RoleOwner:
		return AllPermissions()
	default:
		return nil
	}
}

// SeedGrantRows flattens the default grant table into (role, permission)
// pairs for bulk insertion by the seeder.
func SeedGrantRows() [][2]string {
	var rows [][2]string
	for _, role := range AllRoles() {
		for _, perm := range DefaultRoleGrants(role) {
			rows = append(rows, [2]string{string(role), string(perm)})
		}
	}
	return rows
}
