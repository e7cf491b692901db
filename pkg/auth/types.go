// Package auth holds the identity building blocks: users, login session
// claims, the Redis session store, and long-lived API tokens for
// automation. Authorization decisions live in pkg/rbac; this package
// only establishes who is calling.
package auth

import (
	"time"

	"github.com/secopshq/console/pkg/rbac"
)

// User represents a console user account.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// SessionClaims is the identity snapshot minted at login. The embedded
// permission set reflects the member's grants at login time; it serves
// only as the provisional set while the live sync layer is loading and
// is superseded the moment a live set arrives.
type SessionClaims struct {
	Subject     string            `json:"sub"`
	UserID      int64             `json:"user_id"`
	TenantID    int64             `json:"tenant_id"`
	TenantRole  rbac.Role         `json:"tenant_role"`
	Permissions []rbac.Permission `json:"permissions,omitempty"`
	IssuedAt    time.Time         `json:"issued_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Expired reports whether the claims are past their expiry.
func (c SessionClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// APIToken represents a long-lived API token for automation. The token
// value itself is returned exactly once at creation; only its hash is
// stored.
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TenantID     int64      `json:"tenant_id"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Revoked reports whether the token has been revoked.
func (t *APIToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry. Tokens without
// an expiry never expire.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
