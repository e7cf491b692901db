package rbac

// Access is the single contract the rest of the application uses for
// authorization-sensitive decisions. It binds one resolved permission set
// to the member's tenant role; pages and gates never reach past it into
// the resolver.
type Access struct {
	resolution Resolution
	role       Role
}

// NewAccess binds a resolution to the member's tenant role. An empty role
// (no active tenant, or not yet resolved) makes every role-based check
// fail closed.
func NewAccess(res Resolution, role Role) Access {
	if res.Permissions == nil {
		res.Permissions = map[Permission]struct{}{}
	}
	return Access{resolution: res, role: role}
}

// Can reports exact membership of p in the effective permission set.
// There is no bypass for any role: owner and admin are expected to carry
// large permission sets from the resolver, which keeps a custom role with
// an elevated label but pruned grants correctly restricted.
func (a Access) Can(p Permission) bool {
	return a.resolution.Has(p)
}

// Cannot is the boolean inverse of Can.
func (a Access) Cannot(p Permission) bool {
	return !a.Can(p)
}

// CanAny reports whether at least one of the listed permissions is
// present. With no arguments it reports false.
func (a Access) CanAny(perms ...Permission) bool {
	for _, p := range perms {
		if a.Can(p) {
			return true
		}
	}
	return false
}

// CanAll reports whether every listed permission is present.
func (a Access) CanAll(perms ...Permission) bool {
	for _, p := range perms {
		if !a.Can(p) {
			return false
		}
	}
	return true
}

// IsRole reports an exact match against the member's tenant role. Use
// this for deliberately role-gated operations (e.g. tenant deletion),
// not for feature gating.
func (a Access) IsRole(r Role) bool {
	return a.role != "" && a.role == r
}

// IsAnyRole reports whether the tenant role matches any of the listed
// roles exactly.
func (a Access) IsAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if a.IsRole(r) {
			return true
		}
	}
	return false
}

// IsAtLeast reports whether the tenant role ranks at or above required.
func (a Access) IsAtLeast(required Role) bool {
	return RoleAtLeast(a.role, required)
}

// IsOwner reports whether the member holds the owner role.
func (a Access) IsOwner() bool {
	return a.IsRole(RoleOwner)
}

// IsAdmin reports whether the member ranks at least admin; owners
// satisfy it too.
func (a Access) IsAdmin() bool {
	return a.IsAtLeast(RoleAdmin)
}

// Loading reports whether the effective set is still provisional (the
// live source has not completed its first fetch).
func (a Access) Loading() bool {
	return a.resolution.Loading
}

// Role returns the member's tenant role ("" when absent).
func (a Access) Role() Role {
	return a.role
}

// Permissions returns the effective permission set in sorted order.
func (a Access) Permissions() []Permission {
	return a.resolution.List()
}
