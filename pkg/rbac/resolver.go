package rbac

import (
	"context"
	"sort"
)

// SyncState is the snapshot reported by the live permission sync source
// for one {tenant, user}. Loading means the source has not completed its
// first fetch for this pair; an empty Permissions slice with Loading
// false means the member truly has no permissions.
type SyncState struct {
	Permissions []Permission
	Loading     bool
}

// SyncSource is the live, authoritative permission feed. Implementations
// (pkg/permsync) track server-side RBAC edits in real time and must
// report a fresh loading cycle after a tenant switch.
type SyncSource interface {
	State(ctx context.Context, tenantID, userID int64) SyncState
}

// Resolution is the effective permission set for the active member in the
// active tenant plus a flag distinguishing "not known yet" from "known
// and empty".
type Resolution struct {
	Permissions map[Permission]struct{}
	Loading     bool
}

// Has reports membership in the effective set.
func (r Resolution) Has(p Permission) bool {
	_, ok := r.Permissions[p]
	return ok
}

// List returns the effective permissions in stable sorted order.
func (r Resolution) List() []Permission {
	out := make([]Permission, 0, len(r.Permissions))
	for p := range r.Permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve combines the live sync snapshot with the session-claim
// permission list under a strict precedence, first match wins:
//
//  1. Live source delivered a non-empty set: use it verbatim.
//  2. Live source finished loading and reports empty: trust it. No
//     fallback; substituting anything here would show stale elevated
//     access after a revocation.
//  3. Live source still loading and claims are non-empty: use the claims
//     as a provisional value.
//  4. Empty.
//
// The static default grant table (seedgrants.go) is deliberately not an
// input; reintroducing it as a fallback is a regression.
func Resolve(live SyncState, claims []Permission) Resolution {
	if len(live.Permissions) > 0 {
		return Resolution{Permissions: toSet(live.Permissions)}
	}
	if !live.Loading {
		return Resolution{Permissions: map[Permission]struct{}{}}
	}
	if len(claims) > 0 {
		return Resolution{Permissions: toSet(claims), Loading: true}
	}
	return Resolution{Permissions: map[Permission]struct{}{}, Loading: true}
}

// Resolver computes effective permission sets from an injected live
// source. It holds no ambient state; tenant and user identity arrive as
// arguments so the resolver stays testable without a server harness.
type Resolver struct {
	source SyncSource
}

// NewResolver creates a resolver over the given live source.
func NewResolver(source SyncSource) *Resolver {
	return &Resolver{source: source}
}

// Snapshot resolves the effective permission set for one member, applying
// the Resolve precedence to the live source's current state and the
// session-claim permissions.
func (r *Resolver) Snapshot(ctx context.Context, tenantID, userID int64, claims []Permission) Resolution {
	live := SyncState{Loading: true}
	if r.source != nil {
		live = r.source.State(ctx, tenantID, userID)
	}
	return Resolve(live, claims)
}

func toSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
