package store

import (
	"context"
	"errors"

	"clientdesk.app/identity/core/db"
	"clientdesk.app/identity/internal/model"
	"github.com/jackc/pgx/v5"
)

type customerStore struct {
	conn db.DBTX
}

func newCustomerStore(conn db.DBTX) CustomerStore {
	return &customerStore{conn: conn}
}

func (s *customerStore) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	var c model.Customer
	err := s.conn.QueryRow(ctx, `SELECT id, organization_id, name, created_at
		FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *customerStore) Create(ctx context.Context, customer *model.Customer) error {
	return s.conn.QueryRow(ctx, `INSERT INTO customers (id, organization_id, name)
		VALUES ($1, $2, $3) RETURNING created_at`,
		customer.ID, customer.OrganizationID, customer.Name,
	).Scan(&customer.CreatedAt)
}

func (s *customerStore) CountByOrganization(ctx context.Context, orgID int64) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM customers WHERE organization_id = $1`, orgID).Scan(&n)
	return n, err
}

type assignmentStore struct {
	conn db.DBTX
}

func newAssignmentStore(conn db.DBTX) AssignmentStore {
	return &assignmentStore{conn: conn}
}

func (s *assignmentStore) Create(ctx context.Context, a *model.CustomerAssignment) error {
	return s.conn.QueryRow(ctx, `INSERT INTO customer_assignments (id, organization_id, staff_user_id, customer_id)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		a.ID, a.OrganizationID, a.StaffUserID, a.CustomerID,
	).Scan(&a.CreatedAt)
}

func (s *assignmentStore) ListByStaff(ctx context.Context, staffUserID int64) ([]model.CustomerAssignment, error) {
	rows, err := s.conn.Query(ctx, `SELECT id, organization_id, staff_user_id, customer_id, created_at
		FROM customer_assignments WHERE staff_user_id = $1 ORDER BY created_at`, staffUserID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CustomerAssignment, error) {
		var a model.CustomerAssignment
		err := row.Scan(&a.ID, &a.OrganizationID, &a.StaffUserID, &a.CustomerID, &a.CreatedAt)
		return a, err
	})
}

func (s *assignmentStore) DeleteByStaff(ctx context.Context, staffUserID int64) (int, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM customer_assignments WHERE staff_user_id = $1`, staffUserID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
