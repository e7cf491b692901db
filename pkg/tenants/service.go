package tenants

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
)

// Service manages tenants in PostgreSQL. It also owns the provisioning
// side effects: seeding role grants and licensed modules on create, and
// updating licensed modules on plan changes.
type Service struct {
	db      *sql.DB
	grants  *rbac.Store
	modules *modules.Store
}

// NewService creates a tenant service.
func NewService(db *sql.DB, grants *rbac.Store, moduleStore *modules.Store) *Service {
	return &Service{db: db, grants: grants, modules: moduleStore}
}

// Migrations returns the schema for tenant storage.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id BIGINT,
			plan_tier TEXT NOT NULL DEFAULT 'free',
			status TEXT NOT NULL DEFAULT 'active',
			is_active BOOLEAN NOT NULL DEFAULT true,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_users (
			tenant_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			email TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			invited_by BIGINT,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_invitations (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			invited_by BIGINT NOT NULL,
			invited_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL,
			accepted_at TIMESTAMP,
			accepted_by BIGINT
		)`,
	}
}

// RunMigrations applies the tenant schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("tenant migration failed: %w", err)
		}
	}
	return nil
}

// CreateTenant creates a tenant and provisions it: the creator becomes
// the owner member, default role grants are seeded, and the plan's
// modules are licensed.
func (s *Service) CreateTenant(ctx context.Context, req *CreateTenantRequest, ownerID int64, ownerEmail string) (*Tenant, error) {
	tenant := &Tenant{
		Name:        req.Name,
		Slug:        generateSlug(req.Name),
		DisplayName: req.DisplayName,
		Description: req.Description,
		OwnerID:     &ownerID,
		PlanTier:    req.PlanTier,
		Status:      TenantStatusActive,
		IsActive:    true,
		Settings:    req.Settings,
	}
	if tenant.PlanTier == "" {
		tenant.PlanTier = PlanFree
	}
	if tenant.DisplayName == "" {
		tenant.DisplayName = tenant.Name
	}

	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tenants (name, slug, display_name, description, owner_id, plan_tier, status, is_active, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		tenant.Name, tenant.Slug, tenant.DisplayName, tenant.Description,
		tenant.OwnerID, tenant.PlanTier, tenant.Status, tenant.IsActive, string(settingsJSON),
	).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	if err := s.grants.SeedRoleGrants(ctx, tenant.ID); err != nil {
		return nil, fmt.Errorf("failed to seed role grants: %w", err)
	}
	if err := s.modules.SetTenantModules(ctx, tenant.ID, PlanModules(tenant.PlanTier)); err != nil {
		return nil, fmt.Errorf("failed to license plan modules: %w", err)
	}
	if err := s.AddMember(ctx, tenant.ID, ownerID, ownerEmail, rbac.RoleOwner, nil); err != nil {
		return nil, fmt.Errorf("failed to add owner: %w", err)
	}

	return tenant, nil
}

// GetTenant retrieves a tenant by ID.
func (s *Service) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	return s.getTenant(ctx, `WHERE id = $1`, id)
}

// GetTenantBySlug retrieves a tenant by slug.
func (s *Service) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.getTenant(ctx, `WHERE slug = $1`, slug)
}

func (s *Service) getTenant(ctx context.Context, where string, arg interface{}) (*Tenant, error) {
	tenant := &Tenant{}
	var settingsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, display_name, description, owner_id, plan_tier, status,
		       is_active, settings, created_at, updated_at
		FROM tenants `+where, arg,
	).Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.DisplayName, &tenant.Description,
		&tenant.OwnerID, &tenant.PlanTier, &tenant.Status, &tenant.IsActive, &settingsJSON,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return tenant, nil
}

// ListTenantsForUser lists the active tenants the user belongs to.
func (s *Service) ListTenantsForUser(ctx context.Context, userID int64) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.display_name, t.description, t.owner_id,
		       t.plan_tier, t.status, t.is_active, t.settings, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_users tu ON t.id = tu.tenant_id
		WHERE tu.user_id = $1 AND t.is_active = true
		ORDER BY t.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		tenant := &Tenant{}
		var settingsJSON []byte
		if err := rows.Scan(
			&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.DisplayName, &tenant.Description,
			&tenant.OwnerID, &tenant.PlanTier, &tenant.Status, &tenant.IsActive, &settingsJSON,
			&tenant.CreatedAt, &tenant.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// UpdateTenant applies a partial update.
func (s *Service) UpdateTenant(ctx context.Context, id int64, updates *UpdateTenantRequest) error {
	setClauses := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}
	argN := 1

	if updates.DisplayName != nil {
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", argN))
		args = append(args, *updates.DisplayName)
		argN++
	}
	if updates.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argN))
		args = append(args, *updates.Description)
		argN++
	}
	if updates.Settings != nil {
		settingsJSON, err := json.Marshal(updates.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("settings = $%d", argN))
		args = append(args, string(settingsJSON))
		argN++
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tenants SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argN)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPlanTier changes the tenant's plan and relicenses its modules to
// match. The licensing cache must be invalidated by the caller.
func (s *Service) SetPlanTier(ctx context.Context, id int64, tier PlanTier) error {
	if !IsValidPlanTier(tier) {
		return fmt.Errorf("unknown plan tier %q", tier)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET plan_tier = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, tier, id)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return s.modules.SetTenantModules(ctx, id, PlanModules(tier))
}

// DeleteTenant soft deletes a tenant. Its data remains for audit
// purposes; sessions against it stop authorizing at the tenant guard.
func (s *Service) DeleteTenant(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET status = $1, is_active = false, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status != $1`, TenantStatusDeleted, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// generateSlug derives a URL-safe slug from a tenant name.
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// generateInviteToken returns a random hex token for invitation links.
func generateInviteToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
