// Package modules tracks the Console feature modules: their release
// status, administrative activation, and which of them each tenant has
// licensed. The navigation filter consumes this as one axis; permission
// gating is the other and lives in pkg/rbac.
package modules

// ID identifies a feature module. Module IDs match the leading segment
// of the permissions that belong to the module.
type ID string

const (
	ModuleAssets       ID = "assets"
	ModuleScans        ID = "scans"
	ModuleFindings     ID = "findings"
	ModuleReports      ID = "reports"
	ModuleTeam         ID = "team"
	ModuleIntegrations ID = "integrations"
	ModuleSettings     ID = "settings"
	ModuleAudit        ID = "audit"
)

// ReleaseStatus tags a module's rollout stage. Preview and beta modules
// are discoverable regardless of licensing so tenants can find upcoming
// features; only stable modules are subject to license pruning.
type ReleaseStatus string

const (
	ReleaseStable  ReleaseStatus = "stable"
	ReleaseBeta    ReleaseStatus = "beta"
	ReleasePreview ReleaseStatus = "preview"
)

// Module describes one entry of the module registry.
type Module struct {
	ID            ID            `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	IsActive      bool          `json:"is_active"`
	ReleaseStatus ReleaseStatus `json:"release_status,omitempty"`
}

// Licensing is the per-tenant licensing snapshot: the global registry
// plus the tenant's licensed module set. It is immutable once built;
// the service hands out a fresh snapshot per request.
type Licensing struct {
	registry map[ID]Module
	licensed map[ID]struct{}
}

// NewLicensing builds a snapshot from the registry and the tenant's
// licensed module list. An empty licensed list means "no licensing data"
// and deliberately fails open: absence of data is not absence of a
// license, and real enforcement happens server-side on the feature APIs.
func NewLicensing(registry []Module, licensed []ID) Licensing {
	l := Licensing{
		registry: make(map[ID]Module, len(registry)),
		licensed: make(map[ID]struct{}, len(licensed)),
	}
	for _, m := range registry {
		l.registry[m.ID] = m
	}
	for _, id := range licensed {
		l.licensed[id] = struct{}{}
	}
	return l
}

// StatusOf returns the module's release status; unknown modules report
// an empty status.
func (l Licensing) StatusOf(id ID) ReleaseStatus {
	return l.registry[id].ReleaseStatus
}

// Active reports whether the module is administratively active. A module
// missing from the registry counts as active: an unknown ID is a
// configuration smell, not grounds for hiding features outright.
func (l Licensing) Active(id ID) bool {
	m, ok := l.registry[id]
	if !ok {
		return true
	}
	return m.IsActive
}

// Licensed reports whether the tenant may use the module. With no
// licensing data at all this fails open.
func (l Licensing) Licensed(id ID) bool {
	if len(l.licensed) == 0 {
		return true
	}
	_, ok := l.licensed[id]
	return ok
}

// HasData reports whether any tenant licensing rows were loaded.
func (l Licensing) HasData() bool {
	return len(l.licensed) > 0
}

// Registry returns the known modules in arbitrary order.
func (l Licensing) Registry() []Module {
	out := make([]Module, 0, len(l.registry))
	for _, m := range l.registry {
		out = append(out, m)
	}
	return out
}

// DefaultRegistry returns the built-in module registry used when the
// store has no rows yet (fresh install, tests).
func DefaultRegistry() []Module {
	return []Module{
		{ID: ModuleAssets, Name: "Asset Inventory", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleScans, Name: "Scans", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleFindings, Name: "Findings", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleReports, Name: "Reports", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleTeam, Name: "Team", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleIntegrations, Name: "Integrations", IsActive: true, ReleaseStatus: ReleaseBeta},
		{ID: ModuleSettings, Name: "Settings", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleAudit, Name: "Audit Log", IsActive: true, ReleaseStatus: ReleasePreview},
	}
}
