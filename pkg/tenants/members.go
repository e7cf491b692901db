package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/secopshq/console/pkg/rbac"
)

// InvitationTTL is how long an invitation stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// ListMembers lists tenant members joined with their current role
// grant. Members without a grant report an empty role and fail closed
// at access checks.
func (s *Service) ListMembers(ctx context.Context, tenantID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tu.tenant_id, tu.user_id, COALESCE(mg.role, ''), tu.email, tu.full_name, tu.invited_by, tu.joined_at
		FROM tenant_users tu
		LEFT JOIN member_grants mg ON mg.tenant_id = tu.tenant_id AND mg.user_id = tu.user_id
		WHERE tu.tenant_id = $1
		ORDER BY tu.joined_at ASC, tu.user_id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		var invitedBy sql.NullInt64
		if err := rows.Scan(&m.TenantID, &m.UserID, &m.Role, &m.Email, &m.FullName, &invitedBy, &m.JoinedAt); err != nil {
			return nil, err
		}
		if invitedBy.Valid {
			m.InvitedBy = &invitedBy.Int64
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember adds a user to the tenant and writes their role grant.
func (s *Service) AddMember(ctx context.Context, tenantID, userID int64, email string, role rbac.Role, invitedBy *int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_users (tenant_id, user_id, email, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		tenantID, userID, email, invitedBy)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return s.grants.SetMemberGrant(ctx, &rbac.MemberGrant{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
	})
}

// RemoveMember removes a user from the tenant along with their grant.
func (s *Service) RemoveMember(ctx context.Context, tenantID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return s.grants.RemoveMemberGrant(ctx, tenantID, userID)
}

// CreateInvitation creates a pending invitation and returns it with the
// token set. The token appears only here; listings omit it.
func (s *Service) CreateInvitation(ctx context.Context, tenantID int64, email string, role rbac.Role, invitedBy int64) (*Invitation, error) {
	token, err := generateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &Invitation{
		TenantID:  tenantID,
		Email:     email,
		Role:      role,
		Token:     token,
		InvitedBy: invitedBy,
		ExpiresAt: time.Now().UTC().Add(InvitationTTL),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tenant_invitations (tenant_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, invited_at`,
		tenantID, email, role, token, invitedBy, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.InvitedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

// AcceptInvitation redeems an invitation token, adding the user as a
// member with the invited role.
func (s *Service) AcceptInvitation(ctx context.Context, token string, userID int64, email string) (*Invitation, error) {
	inv := &Invitation{}
	var acceptedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, role, invited_by, invited_at, expires_at, accepted_at
		FROM tenant_invitations WHERE token = $1`, token,
	).Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if acceptedAt.Valid {
		return nil, fmt.Errorf("invitation already accepted")
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, fmt.Errorf("invitation expired")
	}

	if err := s.AddMember(ctx, inv.TenantID, userID, email, inv.Role, &inv.InvitedBy); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tenant_invitations
		SET accepted_at = CURRENT_TIMESTAMP, accepted_by = $1
		WHERE id = $2`, userID, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	now := time.Now().UTC()
	inv.AcceptedAt = &now
	inv.AcceptedBy = &userID
	return inv, nil
}

// ListInvitations lists the tenant's pending invitations, tokens
// omitted.
func (s *Service) ListInvitations(ctx context.Context, tenantID int64) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, email, role, invited_by, invited_at, expires_at
		FROM tenant_invitations
		WHERE tenant_id = $1 AND accepted_at IS NULL AND expires_at > CURRENT_TIMESTAMP
		ORDER BY invited_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt); err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// RevokeInvitation deletes a pending invitation.
func (s *Service) RevokeInvitation(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_invitations WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
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

// CleanupExpiredInvitations removes invitations past their expiry.
func (s *Service) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_invitations WHERE accepted_at IS NULL AND expires_at < CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up invitations: %w", err)
	}
	return result.RowsAffected()
}
