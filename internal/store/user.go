package store

import (
	"context"
	"errors"
	"time"

	"clientdesk.app/identity/core/db"
	"clientdesk.app/identity/internal/model"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, external_id, organization_id, role, customer_id, impersonating_user_id,
	email, first_name, last_name, deleted_at, created_at, updated_at`

type userStore struct {
	conn db.DBTX
}

func newUserStore(conn db.DBTX) UserStore {
	return &userStore{conn: conn}
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *userStore) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
	return scanUser(row)
}

func (s *userStore) GetActiveByOrgAndEmail(ctx context.Context, orgID int64, email string) (*model.User, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users
		WHERE organization_id = $1 AND lower(email) = $2 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, orgID, email)
	return scanUser(row)
}

func (s *userStore) ListActiveByOrganization(ctx context.Context, orgID int64) ([]model.User, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+userColumns+` FROM users
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *userStore) CountActiveByOrgAndRole(ctx context.Context, orgID int64, role model.Role) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM users
		WHERE organization_id = $1 AND role = $2 AND deleted_at IS NULL`, orgID, string(role)).Scan(&n)
	return n, err
}

func (s *userStore) Create(ctx context.Context, user *model.User) error {
	row := s.conn.QueryRow(ctx, `INSERT INTO users (
			id, external_id, organization_id, role, customer_id, impersonating_user_id,
			email, first_name, last_name, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+userColumns,
		user.ID, user.ExternalID, user.OrganizationID, roleArg(user.Role), user.CustomerID,
		user.ImpersonatingUserID, user.Email, user.FirstName, user.LastName, user.DeletedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		return err
	}
	*user = *created
	return nil
}

func (s *userStore) Update(ctx context.Context, user *model.User) error {
	row := s.conn.QueryRow(ctx, `UPDATE users SET
			organization_id = $2, role = $3, customer_id = $4, impersonating_user_id = $5,
			email = $6, first_name = $7, last_name = $8, deleted_at = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.OrganizationID, roleArg(user.Role), user.CustomerID, user.ImpersonatingUserID,
		user.Email, user.FirstName, user.LastName, user.DeletedAt,
	)
	updated, err := scanUser(row)
	if err != nil {
		return err
	}
	*user = *updated
	return nil
}

func (s *userStore) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.conn.Exec(ctx, `UPDATE users
		SET deleted_at = $2, impersonating_user_id = NULL, updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) ClearImpersonationOf(ctx context.Context, targetID int64) error {
	_, err := s.conn.Exec(ctx, `UPDATE users
		SET impersonating_user_id = NULL, updated_at = now()
		WHERE impersonating_user_id = $1`, targetID)
	return err
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role *string
	)
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.OrganizationID, &role, &u.CustomerID, &u.ImpersonatingUserID,
		&u.Email, &u.FirstName, &u.LastName, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if role != nil {
		r := model.Role(*role)
		u.Role = &r
	}
	return &u, nil
}

func roleArg(r *model.Role) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}
