package modules

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists the module registry and per-tenant licensing rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a module store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListModules returns the module registry ordered by ID. An empty table
// yields the built-in default registry so a fresh install still has a
// working navigation tree.
func (s *Store) ListModules(ctx context.Context) ([]Module, error) {
	query := `
		SELECT id, name, description, is_active, release_status
		FROM modules
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.IsActive, &m.ReleaseStatus); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return DefaultRegistry(), nil
	}
	return out, nil
}

// UpsertModule creates or updates one registry entry.
func (s *Store) UpsertModule(ctx context.Context, m Module) error {
	query := `
		INSERT INTO modules (id, name, description, is_active, release_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			is_active = EXCLUDED.is_active, release_status = EXCLUDED.release_status
	`
	_, err := s.db.ExecContext(ctx, query, string(m.ID), m.Name, m.Description, m.IsActive, string(m.ReleaseStatus))
	if err != nil {
		return fmt.Errorf("failed to upsert module %s: %w", m.ID, err)
	}
	return nil
}

// SetModuleActive flips a module's administrative activation.
func (s *Store) SetModuleActive(ctx context.Context, id ID, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE modules SET is_active = $1 WHERE id = $2`, active, string(id))
	if err != nil {
		return fmt.Errorf("failed to update module %s: %w", id, err)
	}
	return nil
}

// ListTenantModules returns the tenant's licensed module IDs. No rows
// means no licensing data (the fail-open signal).
func (s *Store) ListTenantModules(ctx context.Context, tenantID int64) ([]ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT module_id FROM tenant_modules WHERE tenant_id = $1 ORDER BY module_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant modules: %w", err)
	}
	defer rows.Close()

	var out []ID
	for rows.Next() {
		var id ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetTenantModules replaces the tenant's licensed module set.
func (s *Store) SetTenantModules(ctx context.Context, tenantID int64, ids []ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tenant_modules WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to clear tenant modules: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tenant_modules (tenant_id, module_id) VALUES ($1, $2)`,
			tenantID, string(id)); err != nil {
			return fmt.Errorf("failed to insert tenant module: %w", err)
		}
	}
	return tx.Commit()
}

// Migrations returns the module schema statements.
func Migrations() []string {
	return []string{
		`
		CREATE TABLE IF NOT EXISTS modules (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			release_status VARCHAR(16) NOT NULL DEFAULT 'stable'
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS tenant_modules (
			tenant_id BIGINT NOT NULL,
			module_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (tenant_id, module_id)
		);
		`,
	}
}

// RunMigrations applies the module schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("modules migration failed: %w", err)
		}
	}
	return nil
}
