package sso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/secopshq/console/pkg/auth"
	"github.com/secopshq/console/pkg/rbac"
	"github.com/secopshq/console/pkg/tenants"
)

var (
	// ErrProvisioningDisabled is returned when an unknown user logs
	// in through a provider with auto-provisioning turned off.
	ErrProvisioningDisabled = errors.New("auto-provisioning is disabled for this provider")

	// ErrNoRoleMapped is returned when neither the group mapping nor
	// the default role yields a role for the user. Such logins are
	// refused rather than admitted without access.
	ErrNoRoleMapped = errors.New("no role mapped for user")
)

// Provisioner performs just-in-time provisioning: it turns a verified
// SSOUser into a local user account, a tenant membership with the
// mapped role, and session claims carrying the member's permission
// snapshot at login time.
type Provisioner struct {
	db      *sql.DB
	tenants *tenants.Service
	grants  *rbac.Store
}

// NewProvisioner creates a provisioner.
func NewProvisioner(db *sql.DB, tenantService *tenants.Service, grants *rbac.Store) *Provisioner {
	return &Provisioner{db: db, tenants: tenantService, grants: grants}
}

// Login provisions the user and mints session claims for them. The
// claims' permission set is the member's effective permissions at this
// moment; it serves as the provisional set until the live sync layer
// reports in.
func (p *Provisioner) Login(ctx context.Context, ssoUser *SSOUser, config *ProviderConfig) (*auth.User, auth.SessionClaims, error) {
	user, role, err := p.Provision(ctx, ssoUser, config)
	if err != nil {
		return nil, auth.SessionClaims{}, err
	}

	perms, err := p.grants.EffectivePermissions(ctx, config.TenantID, user.ID)
	if err != nil {
		return nil, auth.SessionClaims{}, fmt.Errorf("failed to snapshot permissions: %w", err)
	}

	claims := auth.SessionClaims{
		Subject:     fmt.Sprintf("sso:%s:%s", config.Name, ssoUser.ExternalID),
		UserID:      user.ID,
		TenantID:    config.TenantID,
		TenantRole:  role,
		Permissions: perms,
	}
	return user, claims, nil
}

// Provision creates or updates the local user for an SSO identity and
// ensures their tenant membership carries the mapped role.
func (p *Provisioner) Provision(ctx context.Context, ssoUser *SSOUser, config *ProviderConfig) (*auth.User, rbac.Role, error) {
	role := config.ResolveRole(ssoUser.Groups)
	if role == "" {
		return nil, "", ErrNoRoleMapped
	}

	var userID int64
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id FROM sso_user_mappings
		WHERE provider_id = $1 AND external_id = $2`,
		config.ID, ssoUser.ExternalID).Scan(&userID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !config.AutoProvision {
			return nil, "", ErrProvisioningDisabled
		}
		userID, err = p.createUser(ctx, ssoUser, config)
		if err != nil {
			return nil, "", err
		}
	case err != nil:
		return nil, "", fmt.Errorf("failed to look up user mapping: %w", err)
	default:
		if err := p.refreshUser(ctx, userID, ssoUser, config); err != nil {
			return nil, "", err
		}
	}

	// AddMember is idempotent on membership and upserts the role
	// grant, so repeated logins track group changes at the IdP.
	if err := p.tenants.AddMember(ctx, config.TenantID, userID, ssoUser.Email, role, nil); err != nil {
		return nil, "", fmt.Errorf("failed to ensure tenant membership: %w", err)
	}

	user, err := p.getUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return user, role, nil
}

func (p *Provisioner) createUser(ctx context.Context, ssoUser *SSOUser, config *ProviderConfig) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// The same person may already exist through another provider or
	// an invitation; reuse the account keyed by email.
	var userID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM users WHERE email = $1`, ssoUser.Email).Scan(&userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, `
			INSERT INTO users (email, full_name, is_active, created_at, updated_at, last_login_at)
			VALUES ($1, $2, true, $3, $3, $3)
			RETURNING id`,
			ssoUser.Email, ssoUser.DisplayName(), now).Scan(&userID)
		if err != nil {
			return 0, fmt.Errorf("failed to create user: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up user: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET full_name = $1, updated_at = $2, last_login_at = $2 WHERE id = $3`,
			ssoUser.DisplayName(), now, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to update user: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sso_user_mappings (provider_id, external_id, user_id, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $4)`,
		config.ID, ssoUser.ExternalID, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create user mapping: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return userID, nil
}

func (p *Provisioner) refreshUser(ctx context.Context, userID int64, ssoUser *SSOUser, config *ProviderConfig) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE users SET email = $1, full_name = $2, updated_at = $3, last_login_at = $3 WHERE id = $4`,
		ssoUser.Email, ssoUser.DisplayName(), now, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sso_user_mappings SET last_login_at = $1, updated_at = $1
		WHERE provider_id = $2 AND external_id = $3`,
		now, config.ID, ssoUser.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to update user mapping: %w", err)
	}

	return tx.Commit()
}

func (p *Provisioner) getUser(ctx context.Context, userID int64) (*auth.User, error) {
	user := &auth.User{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, is_active, created_at, updated_at, last_login_at
		FROM users WHERE id = $1`, userID).Scan(
		&user.ID, &user.Email, &user.FullName, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

// GetUserMapping retrieves the mapping for an IdP identity.
func (p *Provisioner) GetUserMapping(ctx context.Context, providerID int64, externalID string) (*UserMapping, error) {
	mapping := &UserMapping{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, provider_id, external_id, user_id, last_login_at, created_at, updated_at
		FROM sso_user_mappings
		WHERE provider_id = $1 AND external_id = $2`,
		providerID, externalID).Scan(
		&mapping.ID, &mapping.ProviderID, &mapping.ExternalID,
		&mapping.UserID, &mapping.LastLoginAt, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// DeleteUserMapping removes an IdP identity mapping. The local user
// account and membership are untouched.
func (p *Provisioner) DeleteUserMapping(ctx context.Context, providerID int64, externalID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM sso_user_mappings
		WHERE provider_id = $1 AND external_id = $2`,
		providerID, externalID)
	return err
}

// ListUserMappings lists all identity mappings for a provider, most
// recently created first.
func (p *Provisioner) ListUserMappings(ctx context.Context, providerID int64) ([]*UserMapping, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, provider_id, external_id, user_id, last_login_at, created_at, updated_at
		FROM sso_user_mappings
		WHERE provider_id = $1
		ORDER BY created_at DESC, id DESC`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*UserMapping
	for rows.Next() {
		mapping := &UserMapping{}
		err := rows.Scan(
			&mapping.ID, &mapping.ProviderID, &mapping.ExternalID,
			&mapping.UserID, &mapping.LastLoginAt, &mapping.CreatedAt, &mapping.UpdatedAt)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	return mappings, rows.Err()
}
