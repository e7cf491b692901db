// Package rbac implements the permission and role model for the Console
// dashboard: the permission catalog, the role hierarchy, the effective
// permission resolver, and the access decision API every feature uses
// for authorization-sensitive behavior.
//
// # Model
//
// A Permission is an opaque string identifier following the
// "module[:subfeature]:action" convention. A Role is one of four coarse
// privilege buckets (viewer < member < admin < owner) with a total
// order. Roles label members and gate a handful of deliberately
// role-scoped operations; they are not the runtime source of
// permissions.
//
// # Resolution
//
// The effective permission set for a member comes from Resolve, which
// combines the live sync source (pkg/permsync) with the session-claim
// permission list under a strict precedence: live data always wins once
// delivered, even when empty; claims only cover the window before the
// first live fetch completes. The static default grant table in
// seedgrants.go is provisioning seed data and is never an input.
//
// # Decisions
//
// Access wraps one resolution plus the member's tenant role and exposes
// Can/CanAny/CanAll/Cannot for permission checks and IsRole/IsAnyRole/
// IsAtLeast/IsOwner/IsAdmin for role checks. Denial is a boolean, never
// an error. Missing context (no tenant, unknown role, unresolved
// permissions) fails closed.
//
// # Enforcement
//
// The middleware in this package enforces the same permissions on API
// routes that pkg/gate renders in the UI, so a disabled control can
// never reach its handler.
package rbac
