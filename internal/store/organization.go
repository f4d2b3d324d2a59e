package store

import (
	"context"
	"errors"

	"clientdesk.app/identity/core/db"
	"clientdesk.app/identity/internal/model"
	"github.com/jackc/pgx/v5"
)

const organizationColumns = `id, external_id, name, subscription_status, product_key,
	max_customers, max_staff, max_clients, created_at, updated_at`

type organizationStore struct {
	conn db.DBTX
}

func newOrganizationStore(conn db.DBTX) OrganizationStore {
	return &organizationStore{conn: conn}
}

func (s *organizationStore) GetByID(ctx context.Context, id int64) (*model.Organization, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	return scanOrganization(row)
}

func (s *organizationStore) GetByExternalID(ctx context.Context, externalID string) (*model.Organization, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE external_id = $1`, externalID)
	return scanOrganization(row)
}

func (s *organizationStore) Create(ctx context.Context, org *model.Organization) error {
	row := s.conn.QueryRow(ctx, `INSERT INTO organizations (
			id, external_id, name, subscription_status, product_key, max_customers, max_staff, max_clients
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+organizationColumns,
		org.ID, org.ExternalID, org.Name, string(org.SubscriptionStatus), org.ProductKey,
		org.MaxCustomers, org.MaxStaff, org.MaxClients,
	)
	created, err := scanOrganization(row)
	if err != nil {
		return err
	}
	*org = *created
	return nil
}

func (s *organizationStore) Update(ctx context.Context, org *model.Organization) error {
	row := s.conn.QueryRow(ctx, `UPDATE organizations SET
			name = $2, subscription_status = $3, product_key = $4,
			max_customers = $5, max_staff = $6, max_clients = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+organizationColumns,
		org.ID, org.Name, string(org.SubscriptionStatus), org.ProductKey,
		org.MaxCustomers, org.MaxStaff, org.MaxClients,
	)
	updated, err := scanOrganization(row)
	if err != nil {
		return err
	}
	*org = *updated
	return nil
}

func scanOrganization(row pgx.Row) (*model.Organization, error) {
	var (
		org    model.Organization
		status string
	)
	err := row.Scan(
		&org.ID, &org.ExternalID, &org.Name, &status, &org.ProductKey,
		&org.MaxCustomers, &org.MaxStaff, &org.MaxClients, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	org.SubscriptionStatus = model.SubscriptionStatus(status)
	return &org, nil
}
