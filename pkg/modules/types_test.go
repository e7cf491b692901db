package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLicensingFailOpenWithoutData(t *testing.T) {
	l := NewLicensing(DefaultRegistry(), nil)

	assert.False(t, l.HasData())
	assert.True(t, l.Licensed(ModuleScans))
	assert.True(t, l.Licensed("anything"))
}

func TestLicensingPrunesUnlicensed(t *testing.T) {
	l := NewLicensing(DefaultRegistry(), []ID{ModuleAssets, ModuleScans})

	assert.True(t, l.HasData())
	assert.True(t, l.Licensed(ModuleAssets))
	assert.False(t, l.Licensed(ModuleReports))
}

func TestLicensingActive(t *testing.T) {
	registry := []Module{
		{ID: ModuleScans, Name: "Scans", IsActive: true, ReleaseStatus: ReleaseStable},
		{ID: ModuleReports, Name: "Reports", IsActive: false, ReleaseStatus: ReleaseStable},
	}
	l := NewLicensing(registry, nil)

	assert.True(t, l.Active(ModuleScans))
	assert.False(t, l.Active(ModuleReports))
	// Unknown modules are not hidden by the activation axis.
	assert.True(t, l.Active("unknown"))
}

func TestLicensingStatusOf(t *testing.T) {
	l := NewLicensing(DefaultRegistry(), nil)

	assert.Equal(t, ReleaseBeta, l.StatusOf(ModuleIntegrations))
	assert.Equal(t, ReleasePreview, l.StatusOf(ModuleAudit))
	assert.Equal(t, ReleaseStatus(""), l.StatusOf("unknown"))
}
