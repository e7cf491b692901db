package sso

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
	"github.com/secopshq/console/pkg/tenants"
)

const tenantTestDDL = `
	CREATE TABLE tenant_users (
		tenant_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		invited_by INTEGER,
		joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (tenant_id, user_id)
	);
`

func setupProvisioner(t *testing.T) (*Provisioner, *rbac.Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	require.NoError(t, rbac.RunMigrations(ctx, db))
	require.NoError(t, modules.RunMigrations(ctx, db))
	_, err = db.Exec(tenantTestDDL + ssoTestDDL)
	require.NoError(t, err)

	grants := rbac.NewStore(db)
	require.NoError(t, grants.SeedRoleGrants(ctx, 1))

	tenantService := tenants.NewService(db, grants, modules.NewStore(db))
	return NewProvisioner(db, tenantService, grants), grants, db
}

func oktaProvider() *ProviderConfig {
	return &ProviderConfig{
		ID:            1,
		TenantID:      1,
		Name:          "okta",
		ProviderType:  ProviderTypeOIDC,
		AutoProvision: true,
		DefaultRole:   rbac.RoleViewer,
		GroupMapping: []GroupMap{
			{Group: "secops-admins", Role: rbac.RoleAdmin},
		},
	}
}

func TestLoginProvisionsNewUser(t *testing.T) {
	provisioner, grants, _ := setupProvisioner(t)
	ctx := context.Background()

	user, claims, err := provisioner.Login(ctx, &SSOUser{
		ExternalID: "okta|ada",
		Email:      "ada@example.com",
		FullName:   "Ada Lovelace",
		Groups:     []string{"secops-admins"},
	}, oktaProvider())
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada Lovelace", user.FullName)

	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, int64(1), claims.TenantID)
	assert.Equal(t, rbac.RoleAdmin, claims.TenantRole)
	assert.Contains(t, claims.Permissions, rbac.PermTeamInvite)
	assert.Contains(t, claims.Subject, "okta|ada")

	grant, err := grants.GetMemberGrant(ctx, 1, user.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, grant.Role)

	mapping, err := provisioner.GetUserMapping(ctx, 1, "okta|ada")
	require.NoError(t, err)
	assert.Equal(t, user.ID, mapping.UserID)
}

func TestLoginReusesExistingMapping(t *testing.T) {
	provisioner, _, db := setupProvisioner(t)
	ctx := context.Background()

	ssoUser := &SSOUser{
		ExternalID: "okta|ada",
		Email:      "ada@example.com",
		Groups:     []string{"secops-admins"},
	}

	first, _, err := provisioner.Login(ctx, ssoUser, oktaProvider())
	require.NoError(t, err)
	second, _, err := provisioner.Login(ctx, ssoUser, oktaProvider())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLoginTracksGroupChanges(t *testing.T) {
	provisioner, grants, _ := setupProvisioner(t)
	ctx := context.Background()

	user, _, err := provisioner.Login(ctx, &SSOUser{
		ExternalID: "okta|grace",
		Email:      "grace@example.com",
	}, oktaProvider())
	require.NoError(t, err)

	grant, err := grants.GetMemberGrant(ctx, 1, user.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleViewer, grant.Role)

	// Promoted at the IdP; the next login picks up the new role.
	_, claims, err := provisioner.Login(ctx, &SSOUser{
		ExternalID: "okta|grace",
		Email:      "grace@example.com",
		Groups:     []string{"secops-admins"},
	}, oktaProvider())
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, claims.TenantRole)

	grant, err = grants.GetMemberGrant(ctx, 1, user.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, grant.Role)
}

func TestLoginRefusedWithoutRole(t *testing.T) {
	provisioner, _, _ := setupProvisioner(t)

	config := oktaProvider()
	config.DefaultRole = ""

	_, _, err := provisioner.Login(context.Background(), &SSOUser{
		ExternalID: "okta|mallory",
		Email:      "mallory@example.com",
		Groups:     []string{"engineering"},
	}, config)
	assert.ErrorIs(t, err, ErrNoRoleMapped)
}

func TestLoginRefusedWhenProvisioningDisabled(t *testing.T) {
	provisioner, _, _ := setupProvisioner(t)

	config := oktaProvider()
	config.AutoProvision = false

	_, _, err := provisioner.Login(context.Background(), &SSOUser{
		ExternalID: "okta|stranger",
		Email:      "stranger@example.com",
	}, config)
	assert.ErrorIs(t, err, ErrProvisioningDisabled)
}

func TestLoginLinksExistingAccountByEmail(t *testing.T) {
	provisioner, _, db := setupProvisioner(t)
	ctx := context.Background()

	_, err := db.Exec(`
		INSERT INTO users (email, full_name, is_active, created_at, updated_at)
		VALUES ('ada@example.com', 'Ada', true, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	user, _, err := provisioner.Login(ctx, &SSOUser{
		ExternalID: "okta|ada",
		Email:      "ada@example.com",
		FullName:   "Ada Lovelace",
	}, oktaProvider())
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, "Ada Lovelace", user.FullName)
}

func TestDeleteUserMapping(t *testing.T) {
	provisioner, _, _ := setupProvisioner(t)
	ctx := context.Background()

	_, _, err := provisioner.Login(ctx, &SSOUser{
		ExternalID: "okta|ada",
		Email:      "ada@example.com",
	}, oktaProvider())
	require.NoError(t, err)

	require.NoError(t, provisioner.DeleteUserMapping(ctx, 1, "okta|ada"))

	_, err = provisioner.GetUserMapping(ctx, 1, "okta|ada")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListUserMappings(t *testing.T) {
	provisioner, _, _ := setupProvisioner(t)
	ctx := context.Background()

	for _, id := range []string{"okta|a", "okta|b"} {
		_, _, err := provisioner.Login(ctx, &SSOUser{
			ExternalID: id,
			Email:      id + "@example.com",
		}, oktaProvider())
		require.NoError(t, err)
	}

	mappings, err := provisioner.ListUserMappings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "okta|b", mappings[0].ExternalID)
}
