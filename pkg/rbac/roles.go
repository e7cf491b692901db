package rbac

// Role is a coarse privilege bucket for a tenant member. Roles carry a
// total order (viewer < member < admin < owner) used for role-gated
// operations; they are NOT the runtime source of permissions. A member's
// effective permission set comes from the resolver, so a custom role
// labeled "owner" with a pruned grant set is still restricted correctly.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// roleRanks maps each role to its position in the hierarchy.
var roleRanks = map[Role]int{
	RoleViewer: 0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// AllRoles returns the four tenant roles ordered from least to most
// privileged.
func AllRoles() []Role {
	return []Role{RoleViewer, RoleMember, RoleAdmin, RoleOwner}
}

// IsValidRole reports whether r is one of the four tenant roles.
func IsValidRole(r Role) bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the role's position in the hierarchy. Unknown or empty
// roles rank at -1 so they never satisfy a requirement.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// RoleAtLeast reports whether actual carries at least the privilege level
// of required. An absent or unrecognized actual role is the lowest
// possible rank, never a wildcard.
func RoleAtLeast(actual, required Role) bool {
	return actual.Rank() >= required.Rank() && actual.Rank() >= 0
}

// RoleLabel returns a display label for a role. Unknown roles fall back
// to the raw identifier.
func RoleLabel(r Role) string {
	switch r {
	case RoleViewer:
		return "Viewer"
	case RoleMember:
		return "Member"
	case RoleAdmin:
		return "Administrator"
	case RoleOwner:
		return "Owner"
	default:
		return string(r)
	}
}
