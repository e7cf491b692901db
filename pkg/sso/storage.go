package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrProviderNotFound is returned when a provider lookup matches
// nothing.
var ErrProviderNotFound = errors.New("sso provider not found")

// Storage persists per-tenant provider configurations.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a provider configuration store.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Migrations returns the DDL for the SSO tables.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sso_providers (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			provider_type TEXT NOT NULL,
			provider_name TEXT NOT NULL DEFAULT 'generic',
			enabled BOOLEAN NOT NULL DEFAULT true,
			auto_provision BOOLEAN NOT NULL DEFAULT true,
			default_role TEXT NOT NULL DEFAULT '',
			saml_config JSONB,
			oidc_config JSONB,
			group_mapping JSONB,
			attribute_mapping JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (tenant_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			last_login_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS sso_user_mappings (
			id BIGSERIAL PRIMARY KEY,
			provider_id BIGINT NOT NULL,
			external_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			last_login_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (provider_id, external_id)
		)`,
	}
}

// RunMigrations applies the SSO DDL.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sso migration failed: %w", err)
		}
	}
	return nil
}

const providerColumns = `id, tenant_id, name, provider_type, provider_name,
	enabled, auto_provision, default_role,
	saml_config, oidc_config, group_mapping, attribute_mapping,
	created_at, updated_at`

type providerJSON struct {
	saml   []byte
	oidc   []byte
	groups []byte
	attrs  []byte
}

func marshalProvider(config *ProviderConfig) (providerJSON, error) {
	var out providerJSON
	var err error

	if config.SAMLConfig != nil {
		if out.saml, err = json.Marshal(config.SAMLConfig); err != nil {
			return out, fmt.Errorf("failed to marshal saml config: %w", err)
		}
	}
	if config.OIDCConfig != nil {
		if out.oidc, err = json.Marshal(config.OIDCConfig); err != nil {
			return out, fmt.Errorf("failed to marshal oidc config: %w", err)
		}
	}
	if len(config.GroupMapping) > 0 {
		if out.groups, err = json.Marshal(config.GroupMapping); err != nil {
			return out, fmt.Errorf("failed to marshal group mapping: %w", err)
		}
	}
	if out.attrs, err = json.Marshal(config.AttributeMapping); err != nil {
		return out, fmt.Errorf("failed to marshal attribute mapping: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProvider(row rowScanner) (*ProviderConfig, error) {
	var raw providerJSON
	config := &ProviderConfig{}

	err := row.Scan(
		&config.ID, &config.TenantID, &config.Name,
		&config.ProviderType, &config.ProviderName,
		&config.Enabled, &config.AutoProvision, &config.DefaultRole,
		&raw.saml, &raw.oidc, &raw.groups, &raw.attrs,
		&config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(raw.saml) > 0 {
		config.SAMLConfig = &SAMLConfig{}
		if err := json.Unmarshal(raw.saml, config.SAMLConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal saml config: %w", err)
		}
	}
	if len(raw.oidc) > 0 {
		config.OIDCConfig = &OIDCConfig{}
		if err := json.Unmarshal(raw.oidc, config.OIDCConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal oidc config: %w", err)
		}
	}
	if len(raw.groups) > 0 {
		if err := json.Unmarshal(raw.groups, &config.GroupMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal group mapping: %w", err)
		}
	}
	if err := json.Unmarshal(raw.attrs, &config.AttributeMapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attribute mapping: %w", err)
	}
	return config, nil
}

// CreateProvider stores a new provider configuration and fills in its
// id and timestamps.
func (s *Storage) CreateProvider(ctx context.Context, config *ProviderConfig) error {
	raw, err := marshalProvider(config)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	config.CreatedAt = now
	config.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sso_providers (
			tenant_id, name, provider_type, provider_name,
			enabled, auto_provision, default_role,
			saml_config, oidc_config, group_mapping, attribute_mapping,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		config.TenantID, config.Name, config.ProviderType, config.ProviderName,
		config.Enabled, config.AutoProvision, config.DefaultRole,
		raw.saml, raw.oidc, raw.groups, raw.attrs,
		now, now).Scan(&config.ID)
	if err != nil {
		return fmt.Errorf("failed to create sso provider: %w", err)
	}
	return nil
}

// GetProvider retrieves a tenant's provider by name.
func (s *Storage) GetProvider(ctx context.Context, tenantID int64, name string) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+providerColumns+`
		FROM sso_providers
		WHERE tenant_id = $1 AND name = $2`, tenantID, name)

	config, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	return config, err
}

// GetProviderByID retrieves a provider by its id.
func (s *Storage) GetProviderByID(ctx context.Context, id int64) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+providerColumns+`
		FROM sso_providers
		WHERE id = $1`, id)

	config, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	return config, err
}

// ListProviders lists a tenant's providers, optionally only enabled
// ones.
func (s *Storage) ListProviders(ctx context.Context, tenantID int64, enabledOnly bool) ([]*ProviderConfig, error) {
	query := `SELECT ` + providerColumns + ` FROM sso_providers WHERE tenant_id = $1`
	if enabledOnly {
		query += " AND enabled = true"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sso providers: %w", err)
	}
	defer rows.Close()

	var providers []*ProviderConfig
	for rows.Next() {
		config, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, config)
	}
	return providers, rows.Err()
}

// UpdateProvider rewrites a provider's configuration.
func (s *Storage) UpdateProvider(ctx context.Context, config *ProviderConfig) error {
	raw, err := marshalProvider(config)
	if err != nil {
		return err
	}

	config.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sso_providers
		SET provider_type = $1, provider_name = $2, enabled = $3,
			auto_provision = $4, default_role = $5,
			saml_config = $6, oidc_config = $7,
			group_mapping = $8, attribute_mapping = $9,
			updated_at = $10
		WHERE id = $11`,
		config.ProviderType, config.ProviderName, config.Enabled,
		config.AutoProvision, config.DefaultRole,
		raw.saml, raw.oidc, raw.groups, raw.attrs,
		config.UpdatedAt, config.ID)
	if err != nil {
		return fmt.Errorf("failed to update sso provider: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// DeleteProvider removes a tenant's provider by name.
func (s *Storage) DeleteProvider(ctx context.Context, tenantID int64, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sso_providers WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	if err != nil {
		return fmt.Errorf("failed to delete sso provider: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// ProviderExists reports whether a tenant already has a provider with
// the given name.
func (s *Storage) ProviderExists(ctx context.Context, tenantID int64, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sso_providers WHERE tenant_id = $1 AND name = $2)`,
		tenantID, name).Scan(&exists)
	return exists, err
}
