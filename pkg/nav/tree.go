// Package nav filters the dashboard navigation tree down to the items
// the current member may see, combining permission/role gating with
// module licensing. The tree itself is application-authored static
// configuration; this package never creates or persists it.
package nav

import (
	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
)

// Item is one navigation node. All gating attributes are optional; an
// item with none is always shown. Items are never mutated by the filter,
// only copied with a possibly narrowed child list and a release-status
// annotation.
type Item struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Path  string `json:"path,omitempty"`
	Icon  string `json:"icon,omitempty"`

	// Module ties the item to a feature module for the licensing axis.
	Module modules.ID `json:"module,omitempty"`
	// Permissions gates the item on canAny of the listed permissions.
	Permissions []rbac.Permission `json:"permissions,omitempty"`
	// Roles gates the item on an exact role match.
	Roles []rbac.Role `json:"roles,omitempty"`
	// MinRole gates the item on the role hierarchy.
	MinRole rbac.Role `json:"min_role,omitempty"`

	// Items holds sub-menu entries.
	Items []Item `json:"items,omitempty"`

	// ReleaseStatus is an output-only annotation for badge rendering;
	// authored trees leave it empty.
	ReleaseStatus modules.ReleaseStatus `json:"release_status,omitempty"`
}
