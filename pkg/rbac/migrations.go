package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents one RBAC schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the RBAC schema migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create role_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_grants (
					tenant_id BIGINT NOT NULL,
					role VARCHAR(32) NOT NULL,
					permission VARCHAR(255) NOT NULL,
					PRIMARY KEY (tenant_id, role, permission)
				);

				CREATE INDEX IF NOT EXISTS idx_role_grants_tenant_role ON role_grants(tenant_id, role);
			`,
		},
		{
			Version:     2,
			Description: "Create custom_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS custom_roles (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					name VARCHAR(255) NOT NULL,
					base_role VARCHAR(32) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					permissions TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					created_by BIGINT,
					UNIQUE(tenant_id, name)
				);

				CREATE INDEX IF NOT EXISTS idx_custom_roles_tenant_id ON custom_roles(tenant_id);
			`,
		},
		{
			Version:     3,
			Description: "Create member_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS member_grants (
					tenant_id BIGINT NOT NULL,
					user_id BIGINT NOT NULL,
					role VARCHAR(32) NOT NULL,
					custom_role_id BIGINT,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (tenant_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_member_grants_user_id ON member_grants(user_id);
				CREATE INDEX IF NOT EXISTS idx_member_grants_custom_role ON member_grants(custom_role_id);
			`,
		},
	}
}

// RunMigrations applies all RBAC migrations against the given database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range Migrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("rbac migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
