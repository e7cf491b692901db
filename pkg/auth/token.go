package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Console API tokens.
	TokenPrefix = "scon_"
	// TokenLength is the number of random bytes per token.
	TokenLength = 32
)

var (
	// ErrTokenNotFound means no token matched the presented value.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenRevoked means the token matched but has been revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired means the token matched but is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// GenerateToken creates a new API token value.
// Format: scon_<base64url(32 random bytes)>
func GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	hash := sha256.Sum256([]byte(fullToken))

	// The stored prefix lets users recognize a token in listings without
	// the value ever being stored.
	prefix := TokenPrefix + encoded[:8]

	return fullToken, hex.EncodeToString(hash[:]), prefix, nil
}

// HashToken computes the lookup hash of a presented token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks the shape of a presented token before any
// database work.
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return errors.New("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// TokenStore persists API tokens.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a token store.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// TokenMigrations returns the schema for API token storage.
func TokenMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS api_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			tenant_id BIGINT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			revoked_at TIMESTAMP,
			revoked_by BIGINT,
			revoke_reason TEXT NOT NULL DEFAULT ''
		)`,
	}
}

// CreateToken mints and stores a token, returning the record and the
// plaintext value. The value is not recoverable afterwards.
func (s *TokenStore) CreateToken(ctx context.Context, tenantID, userID int64, name, description string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}

	record := &APIToken{
		UserID:      userID,
		TenantID:    tenantID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		ExpiresAt:   expiresAt,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO api_tokens (user_id, tenant_id, token_hash, token_prefix, name, description, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		userID, tenantID, tokenHash, tokenPrefix, name, description, expiresAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}
	return record, token, nil
}

// ValidateToken resolves a presented token to its record, rejecting
// revoked and expired tokens, and touches last_used_at.
func (s *TokenStore) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	record, err := s.getByHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if record.Revoked() {
		return nil, ErrTokenRevoked
	}
	if record.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	// Best effort: a failed touch must not fail authentication.
	_, _ = s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = CURRENT_TIMESTAMP WHERE id = $1`, record.ID)
	return record, nil
}

// RevokeToken marks a token revoked with an operator-visible reason.
func (s *TokenStore) RevokeToken(ctx context.Context, tokenID, revokedBy int64, reason string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens
		 SET revoked_at = CURRENT_TIMESTAMP, revoked_by = $1, revoke_reason = $2
		 WHERE id = $3 AND revoked_at IS NULL`,
		revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeUserToken revokes a token only if the given member owns it.
func (s *TokenStore) RevokeUserToken(ctx context.Context, tenantID, userID, tokenID int64, reason string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens
		 SET revoked_at = CURRENT_TIMESTAMP, revoked_by = $1, revoke_reason = $2
		 WHERE id = $3 AND tenant_id = $4 AND user_id = $5 AND revoked_at IS NULL`,
		userID, reason, tokenID, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListUserTokens returns the user's tokens, newest first, revoked ones
// included.
func (s *TokenStore) ListUserTokens(ctx context.Context, tenantID, userID int64) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, token_hash, token_prefix, name, description,
		        expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		 FROM api_tokens
		 WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY created_at DESC, id DESC`,
		tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteExpiredTokens removes tokens past their expiry and returns how
// many were dropped.
func (s *TokenStore) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}

func (s *TokenStore) getByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, token_hash, token_prefix, name, description,
		        expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		 FROM api_tokens WHERE token_hash = $1`, hash)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return t, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*APIToken, error) {
	var t APIToken
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	var revokedBy sql.NullInt64
	err := row.Scan(&t.ID, &t.UserID, &t.TenantID, &t.TokenHash, &t.TokenPrefix,
		&t.Name, &t.Description, &expiresAt, &lastUsedAt, &t.CreatedAt,
		&revokedAt, &revokedBy, &t.RevokeReason)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if revokedBy.Valid {
		t.RevokedBy = &revokedBy.Int64
	}
	return &t, nil
}
