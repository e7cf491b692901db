// Package gate turns access decisions into render directives for the
// dashboard UI. A gate wraps one fragment of the page; the SPA asks this
// package (directly in tests, via the batch endpoint in production)
// whether to render the fragment, hide it, or render it disabled with an
// explanation. Server-side route enforcement stays with pkg/rbac
// middleware; a disabled control that is clicked anyway has no handler
// to reach.
package gate

import (
	"strings"

	"github.com/secopshq/console/pkg/rbac"
)

// loadingTooltip is shown on disable-mode gates before the first live
// permission fetch completes, so the layout holds still instead of
// flashing blank.
const loadingTooltip = "Checking your permissions…"

// Mode selects how a gate treats denied access. Exactly one of Hide or
// Disable applies; the tagged union makes it impossible to supply a
// hide-mode fallback together with a disable-mode tooltip.
type Mode interface {
	mode()
}

// Hide removes the gated fragment when access is denied. Fallback names
// an optional alternate fragment to render in its place.
type Hide struct {
	Fallback string
}

// Disable keeps the gated fragment visible but inert when access is
// denied: dimmed, disabled, pointer events cancelled by the client shell.
// Tooltip overrides the auto-generated explanation.
type Disable struct {
	Tooltip string
}

func (Hide) mode()    {}
func (Disable) mode() {}

// Request describes one gate: the permissions it requires, whether all of
// them are needed (default: any), and the denial mode.
type Request struct {
	Permissions []rbac.Permission
	RequireAll  bool
	Mode        Mode
}

// Decision is the render directive for one gated fragment.
type Decision struct {
	// Render reports whether the fragment should appear at all.
	Render bool `json:"render"`
	// Disabled reports that the fragment renders in its inert
	// presentation; the client shell must also cancel pointer events so
	// components that ignore a disabled flag cannot navigate.
	Disabled bool `json:"disabled"`
	// Tooltip explains a disabled fragment.
	Tooltip string `json:"tooltip,omitempty"`
	// Fallback names the alternate fragment for a hidden gate.
	Fallback string `json:"fallback,omitempty"`
}

// Evaluate decides one gate against the member's access state.
//
// While the resolver is still loading, gated content is withheld rather
// than optimistically shown, except for members whose tenant role is
// admin or owner, for whom loading content renders as if granted: they
// are near-certain to be granted, and holding their content against a
// provisional claims set buys no security, only flicker. In disable
// mode the loading state renders as disabled-with-tooltip to avoid
// layout shift.
func Evaluate(access rbac.Access, req Request) Decision {
	if access.Loading() {
		if access.IsAtLeast(rbac.RoleAdmin) {
			return Decision{Render: true}
		}
		switch req.Mode.(type) {
		case Disable:
			return Decision{Render: true, Disabled: true, Tooltip: loadingTooltip}
		default:
			return Decision{}
		}
	}

	if grantCheck(access, req) {
		return Decision{Render: true}
	}

	switch m := req.Mode.(type) {
	case Disable:
		tooltip := m.Tooltip
		if tooltip == "" {
			tooltip = requirementTooltip(req)
		}
		return Decision{Render: true, Disabled: true, Tooltip: tooltip}
	case Hide:
		return Decision{Fallback: m.Fallback}
	default:
		return Decision{}
	}
}

// Cannot is the strict inverse of the permission check: true when at
// least one listed permission is missing under RequireAll, or all are
// missing otherwise. It is not mode-aware and has no disable machinery.
func Cannot(access rbac.Access, req Request) bool {
	return !grantCheck(access, req)
}

func grantCheck(access rbac.Access, req Request) bool {
	if len(req.Permissions) == 0 {
		return true
	}
	if req.RequireAll {
		return access.CanAll(req.Permissions...)
	}
	return access.CanAny(req.Permissions...)
}

// requirementTooltip builds the auto-generated explanation from the
// required permissions' labels.
func requirementTooltip(req Request) string {
	labels := make([]string, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		labels = append(labels, rbac.PermissionLabel(p))
	}
	joiner := " or "
	if req.RequireAll {
		joiner = " and "
	}
	return "Requires permission: " + strings.Join(labels, joiner)
}
