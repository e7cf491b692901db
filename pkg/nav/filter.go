package nav

import (
	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
)

// Filter prunes a navigation tree for one member. It is a pure function
// of its inputs: the same tree, access state, and licensing snapshot
// always produce the same output, and filtering an already-filtered tree
// changes nothing.
func Filter(items []Item, access rbac.Access, lic modules.Licensing) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if filtered, ok := filterItem(item, access, lic, ""); ok {
			out = append(out, filtered)
		}
	}
	return out
}

// filterItem applies the per-item rule and recurses into sub-menus.
// inherited is the parent's release-status annotation; a child keeps it
// unless it declares a module of its own.
func filterItem(item Item, access rbac.Access, lic modules.Licensing, inherited modules.ReleaseStatus) (Item, bool) {
	status, ok := moduleAxis(item.Module, lic)
	if !ok {
		return Item{}, false
	}
	if item.Module == "" {
		status = inherited
	}

	if item.MinRole != "" && !access.IsAtLeast(item.MinRole) {
		return Item{}, false
	}
	if len(item.Roles) > 0 && !access.IsAnyRole(item.Roles...) {
		return Item{}, false
	}
	if len(item.Permissions) > 0 && !access.CanAny(item.Permissions...) {
		return Item{}, false
	}

	filtered := item
	filtered.ReleaseStatus = status

	if len(item.Items) > 0 {
		children := make([]Item, 0, len(item.Items))
		for _, child := range item.Items {
			if c, ok := filterItem(child, access, lic, status); ok {
				children = append(children, c)
			}
		}
		// A sub-menu with nothing left to show is dropped entirely, even
		// though the parent's own rule passed.
		if len(children) == 0 {
			return Item{}, false
		}
		filtered.Items = children
	}

	return filtered, true
}

// moduleAxis decides the licensing axis for one module reference and
// returns the release-status annotation to attach.
//
// Preview and beta modules are always shown so upcoming features stay
// discoverable, annotated for badge rendering. Administratively
// deactivated modules are hidden unconditionally. A stable, active
// module is pruned only when licensing data exists and excludes it; an
// empty licensed set fails open, because missing module data must not be
// read as a missing license (real enforcement is server-side anyway).
func moduleAxis(id modules.ID, lic modules.Licensing) (modules.ReleaseStatus, bool) {
	if id == "" {
		return "", true
	}

	status := lic.StatusOf(id)
	if status == modules.ReleasePreview || status == modules.ReleaseBeta {
		return status, true
	}
	if !lic.Active(id) {
		return "", false
	}
	if !lic.Licensed(id) {
		return "", false
	}
	return "", true
}
