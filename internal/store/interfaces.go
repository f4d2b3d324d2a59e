package store

import (
	"context"
	"errors"
	"time"

	"clientdesk.app/identity/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// UserStore defines the contract for user data access.
// Lookups return soft-deleted users too, except where the name says Active.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	GetActiveByOrgAndEmail(ctx context.Context, orgID int64, email string) (*model.User, error)
	ListActiveByOrganization(ctx context.Context, orgID int64) ([]model.User, error)
	CountActiveByOrgAndRole(ctx context.Context, orgID int64, role model.Role) (int, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	ClearImpersonationOf(ctx context.Context, targetID int64) error
}

// OrganizationStore defines the contract for organization data access
type OrganizationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Organization, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Organization, error)
	Create(ctx context.Context, org *model.Organization) error
	Update(ctx context.Context, org *model.Organization) error
}

// InvitationStore defines the contract for pending invitation data access.
// "Pending" lookups only return invitations that have not expired at now.
type InvitationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Invitation, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Invitation, error)
	GetPendingByOrgAndEmail(ctx context.Context, orgID int64, email string, now time.Time) (*model.Invitation, error)
	GetLatestByOrgAndEmail(ctx context.Context, orgID int64, email string) (*model.Invitation, error)
	GetNewestPendingByEmail(ctx context.Context, email string, now time.Time) (*model.Invitation, error)
	ListPendingByOrganization(ctx context.Context, orgID int64, now time.Time) ([]model.Invitation, error)
	CountPendingByOrgAndRole(ctx context.Context, orgID int64, role model.Role, now time.Time) (int, error)
	Create(ctx context.Context, inv *model.Invitation) error
	Delete(ctx context.Context, id int64) error // missing rows are not an error
}

// CustomerStore exposes the slice of customer data the identity core needs.
type CustomerStore interface {
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
	Create(ctx context.Context, customer *model.Customer) error
	CountByOrganization(ctx context.Context, orgID int64) (int, error)
}

// AssignmentStore defines the contract for staff-to-customer assignments
type AssignmentStore interface {
	Create(ctx context.Context, a *model.CustomerAssignment) error
	ListByStaff(ctx context.Context, staffUserID int64) ([]model.CustomerAssignment, error)
	DeleteByStaff(ctx context.Context, staffUserID int64) (int, error)
}
