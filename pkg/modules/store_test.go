package modules

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunMigrations(context.Background(), db))
	return db
}

func TestListModulesDefaultsWhenEmpty(t *testing.T) {
	store := NewStore(setupTestDB(t))

	mods, err := store.ListModules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistry(), mods)
}

func TestUpsertAndActivateModule(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.UpsertModule(ctx, Module{
		ID: ModuleScans, Name: "Scans", IsActive: true, ReleaseStatus: ReleaseStable,
	}))
	require.NoError(t, store.SetModuleActive(ctx, ModuleScans, false))

	mods, err := store.ListModules(ctx)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.False(t, mods[0].IsActive)
}

func TestTenantModules(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	ids, err := store.ListTenantModules(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ids, "fresh tenant has no licensing rows")

	require.NoError(t, store.SetTenantModules(ctx, 1, []ID{ModuleScans, ModuleAssets}))
	ids, err = store.ListTenantModules(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []ID{ModuleAssets, ModuleScans}, ids)

	// Replacement, not accumulation.
	require.NoError(t, store.SetTenantModules(ctx, 1, []ID{ModuleReports}))
	ids, err = store.ListTenantModules(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []ID{ModuleReports}, ids)
}

func TestServiceSnapshotCaches(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.SetTenantModules(ctx, 1, []ID{ModuleScans}))

	svc := NewService(store, time.Minute)
	snap, err := svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, snap.Licensed(ModuleScans))
	assert.False(t, snap.Licensed(ModuleReports))

	// A write behind the cache is invisible until invalidation.
	require.NoError(t, store.SetTenantModules(ctx, 1, []ID{ModuleReports}))
	snap, err = svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, snap.Licensed(ModuleScans))

	svc.Invalidate(1)
	snap, err = svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, snap.Licensed(ModuleReports))
	assert.False(t, snap.Licensed(ModuleScans))
}
