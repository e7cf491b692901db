package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested RBAC record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// CustomRole is a tenant-defined role: a role label plus an explicit
// permission subset. A custom role may carry any label, including
// "owner"; its grant set is still the only thing the sync source feeds
// the resolver.
type CustomRole struct {
	ID          int64        `json:"id"`
	TenantID    int64        `json:"tenant_id"`
	Name        string       `json:"name"`
	BaseRole    Role         `json:"base_role"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CreatedBy   *int64       `json:"created_by,omitempty"`
}

// MemberGrant is a member's role assignment within a tenant. When
// CustomRoleID is set the custom role's permission set applies; otherwise
// the tenant's grant rows for the built-in role apply.
type MemberGrant struct {
	TenantID     int64     `json:"tenant_id"`
	UserID       int64     `json:"user_id"`
	Role         Role      `json:"role"`
	CustomRoleID *int64    `json:"custom_role_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store handles RBAC persistence: per-tenant grant rows for the built-in
// roles, custom roles, and member assignments.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetMemberGrant retrieves a member's role assignment in a tenant.
func (s *Store) GetMemberGrant(ctx context.Context, tenantID, userID int64) (*MemberGrant, error) {
	query := `
		SELECT tenant_id, user_id, role, custom_role_id, updated_at
		FROM member_grants
		WHERE tenant_id = $1 AND user_id = $2
	`

	var grant MemberGrant
	var customRoleID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&grant.TenantID,
		&grant.UserID,
		&grant.Role,
		&customRoleID,
		&grant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member grant: %w", err)
	}
	if customRoleID.Valid {
		id := customRoleID.Int64
		grant.CustomRoleID = &id
	}
	return &grant, nil
}

// SetMemberGrant upserts a member's role assignment.
func (s *Store) SetMemberGrant(ctx context.Context, grant *MemberGrant) error {
	query := `
		INSERT INTO member_grants (tenant_id, user_id, role, custom_role_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, custom_role_id = EXCLUDED.custom_role_id, updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query, grant.TenantID, grant.UserID, string(grant.Role), grant.CustomRoleID, now)
	if err != nil {
		return fmt.Errorf("failed to set member grant: %w", err)
	}
	grant.UpdatedAt = now
	return nil
}

// RemoveMemberGrant deletes a member's role assignment.
func (s *Store) RemoveMemberGrant(ctx context.Context, tenantID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM member_grants WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member grant: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// EffectivePermissions computes the member's granted permission set from
// storage. This is what the sync source publishes to resolvers and what
// supersedes any login-time claims snapshot.
func (s *Store) EffectivePermissions(ctx context.Context, tenantID, userID int64) ([]Permission, error) {
	grant, err := s.GetMemberGrant(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if grant.CustomRoleID != nil {
		role, err := s.GetCustomRole(ctx, *grant.CustomRoleID)
		if err != nil {
			return nil, err
		}
		return role.Permissions, nil
	}

	query := `
		SELECT permission FROM role_grants
		WHERE tenant_id = $1 AND role = $2
		ORDER BY permission
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, string(grant.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to list role grants: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SeedRoleGrants installs the default grant rows for every built-in role
// in a tenant. Existing rows are left untouched so admin edits survive
// re-seeding.
func (s *Store) SeedRoleGrants(ctx context.Context, tenantID int64) error {
	query := `
		INSERT INTO role_grants (tenant_id, role, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, role, permission) DO NOTHING
	`
	for _, role := range AllRoles() {
		for _, perm := range DefaultRoleGrants(role) {
			if _, err := s.db.ExecContext(ctx, query, tenantID, string(role), string(perm)); err != nil {
				return fmt.Errorf("failed to seed grants for role %s: %w", role, err)
			}
		}
	}
	return nil
}

// SetRoleGrants replaces the grant rows for one built-in role in a tenant.
func (s *Store) SetRoleGrants(ctx context.Context, tenantID int64, role Role, perms []Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_grants WHERE tenant_id = $1 AND role = $2`, tenantID, string(role)); err != nil {
		return fmt.Errorf("failed to clear role grants: %w", err)
	}
	for _, perm := range perms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_grants (tenant_id, role, permission) VALUES ($1, $2, $3)`,
			tenantID, string(role), string(perm)); err != nil {
			return fmt.Errorf("failed to insert role grant: %w", err)
		}
	}
	return tx.Commit()
}

// CreateCustomRole creates a tenant-defined role.
func (s *Store) CreateCustomRole(ctx context.Context, role *CustomRole) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO custom_roles (tenant_id, name, base_role, description, permissions, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		role.TenantID,
		role.Name,
		string(role.BaseRole),
		role.Description,
		string(permissionsJSON),
		now,
		now,
		role.CreatedBy,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create custom role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetCustomRole retrieves a custom role by ID.
func (s *Store) GetCustomRole(ctx context.Context, id int64) (*CustomRole, error) {
	query := `
		SELECT id, tenant_id, name, base_role, description, permissions, created_at, updated_at, created_by
		FROM custom_roles
		WHERE id = $1
	`
	return s.scanCustomRole(s.db.QueryRowContext(ctx, query, id))
}

// ListCustomRoles returns all custom roles in a tenant ordered by name.
func (s *Store) ListCustomRoles(ctx context.Context, tenantID int64) ([]CustomRole, error) {
	query := `
		SELECT id, tenant_id, name, base_role, description, permissions, created_at, updated_at, created_by
		FROM custom_roles
		WHERE tenant_id = $1
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom roles: %w", err)
	}
	defer rows.Close()

	var roles []CustomRole
	for rows.Next() {
		role, err := s.scanCustomRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// UpdateCustomRolePermissions replaces a custom role's permission set.
func (s *Store) UpdateCustomRolePermissions(ctx context.Context, id int64, perms []Permission) error {
	permissionsJSON, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE custom_roles SET permissions = $1, updated_at = $2 WHERE id = $3`,
		string(permissionsJSON), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update custom role: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCustomRole removes a custom role. Members assigned to it fall
// back to their built-in role's grant rows on the next sync.
func (s *Store) DeleteCustomRole(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM custom_roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete custom role: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanCustomRole(scanner rowScanner) (*CustomRole, error) {
	var role CustomRole
	var permissionsJSON string
	var createdBy sql.NullInt64

	err := scanner.Scan(
		&role.ID,
		&role.TenantID,
		&role.Name,
		&role.BaseRole,
		&role.Description,
		&permissionsJSON,
		&role.CreatedAt,
		&role.UpdatedAt,
		&createdBy,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan custom role: %w", err)
	}

	if permissionsJSON != "" {
		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			role.Permissions = []Permission{}
		}
	} else {
		role.Permissions = []Permission{}
	}
	if createdBy.Valid {
		id := createdBy.Int64
		role.CreatedBy = &id
	}
	return &role, nil
}
