package store

import (
	"context"
	"errors"
	"time"

	"clientdesk.app/identity/core/db"
	"clientdesk.app/identity/internal/model"
	"github.com/jackc/pgx/v5"
)

const invitationColumns = `id, external_id, email, organization_id, role, customer_id,
	inviter_user_id, expires_at, created_at`

type invitationStore struct {
	conn db.DBTX
}

func newInvitationStore(conn db.DBTX) InvitationStore {
	return &invitationStore{conn: conn}
}

func (s *invitationStore) GetByID(ctx context.Context, id int64) (*model.Invitation, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+invitationColumns+` FROM pending_invitations WHERE id = $1`, id)
	return scanInvitation(row)
}

func (s *invitationStore) GetByExternalID(ctx context.Context, externalID string) (*model.Invitation, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+invitationColumns+` FROM pending_invitations WHERE external_id = $1`, externalID)
	return scanInvitation(row)
}

func (s *invitationStore) GetPendingByOrgAndEmail(ctx context.Context, orgID int64, email string, now time.Time) (*model.Invitation, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+invitationColumns+` FROM pending_invitations
		WHERE organization_id = $1 AND email = $2 AND expires_at > $3
		ORDER BY created_at DESC LIMIT 1`, orgID, email, now)
	return scanInvitation(row)
}

func (s *invitationStore) GetLatestByOrgAndEmail(ctx context.Context, orgID int64, email string) (*model.Invitation, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+invitationColumns+` FROM pending_invitations
		WHERE organization_id = $1 AND email = $2
		ORDER BY created_at DESC LIMIT 1`, orgID, email)
	return scanInvitation(row)
}

func (s *invitationStore) GetNewestPendingByEmail(ctx context.Context, email string, now time.Time) (*model.Invitation, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+invitationColumns+` FROM pending_invitations
		WHERE email = $1 AND expires_at > $2
		ORDER BY created_at DESC LIMIT 1`, email, now)
	return scanInvitation(row)
}

func (s *invitationStore) ListPendingByOrganization(ctx context.Context, orgID int64, now time.Time) ([]model.Invitation, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+invitationColumns+` FROM pending_invitations
		WHERE organization_id = $1 AND expires_at > $2
		ORDER BY created_at DESC`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

func (s *invitationStore) CountPendingByOrgAndRole(ctx context.Context, orgID int64, role model.Role, now time.Time) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM pending_invitations
		WHERE organization_id = $1 AND role = $2 AND expires_at > $3`, orgID, string(role), now).Scan(&n)
	return n, err
}

func (s *invitationStore) Create(ctx context.Context, inv *model.Invitation) error {
	row := s.conn.QueryRow(ctx, `INSERT INTO pending_invitations (
			id, external_id, email, organization_id, role, customer_id, inviter_user_id, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+invitationColumns,
		inv.ID, inv.ExternalID, inv.Email, inv.OrganizationID, string(inv.Role), inv.CustomerID,
		inv.InviterUserID, inv.ExpiresAt,
	)
	created, err := scanInvitation(row)
	if err != nil {
		return err
	}
	*inv = *created
	return nil
}

func (s *invitationStore) Delete(ctx context.Context, id int64) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM pending_invitations WHERE id = $1`, id)
	return err
}

func scanInvitation(row pgx.Row) (*model.Invitation, error) {
	var (
		inv  model.Invitation
		role string
	)
	err := row.Scan(
		&inv.ID, &inv.ExternalID, &inv.Email, &inv.OrganizationID, &role, &inv.CustomerID,
		&inv.InviterUserID, &inv.ExpiresAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	inv.Role = model.Role(role)
	return &inv, nil
}
