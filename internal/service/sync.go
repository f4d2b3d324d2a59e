package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clientdesk.app/identity/common"
	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/store"
)

// UpsertUserParams are the verified external facts about a user.
// OrganizationID, Role and CustomerID are only applied when non-nil.
type UpsertUserParams struct {
	ExternalID     string
	Email          string
	FirstName      string
	LastName       string
	OrganizationID *int64
	Role           *model.Role
	CustomerID     *int64

	// ReactivateIfDeleted clears a soft delete on an existing user. Only
	// invitation acceptance sets it implicitly.
	ReactivateIfDeleted bool
}

type SyncService interface {
	// UpsertUserFromAuth creates or patches the user keyed by external id.
	UpsertUserFromAuth(ctx context.Context, params UpsertUserParams) (*model.User, error)
	// SyncFromInvitation applies an accepted invitation to its user,
	// reactivating it if needed, and consumes the invitation.
	SyncFromInvitation(ctx context.Context, inv *model.Invitation, params UpsertUserParams) (*model.User, error)
	// SoftDeleteUser marks the user deleted and drops its staff assignments.
	SoftDeleteUser(ctx context.Context, userID int64) error
}

type syncService struct {
	txRunner TxRunner
	now      func() time.Time
}

func NewSyncService(txRunner TxRunner, now func() time.Time) SyncService {
	return &syncService{txRunner: txRunner, now: now}
}

func (s *syncService) UpsertUserFromAuth(ctx context.Context, params UpsertUserParams) (*model.User, error) {
	var user *model.User
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		user, err = upsertUser(ctx, stores, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *syncService) SyncFromInvitation(ctx context.Context, inv *model.Invitation, params UpsertUserParams) (*model.User, error) {
	var user *model.User
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		user, err = syncFromInvitation(ctx, stores, inv, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *syncService) SoftDeleteUser(ctx context.Context, userID int64) error {
	return s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		user, err := stores.Users().GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("getting user: %w", err)
		}
		return softDeleteUser(ctx, stores, user, s.now())
	})
}

// upsertUser is idempotent: the same params always converge to the same row.
func upsertUser(ctx context.Context, stores StoreProvider, p UpsertUserParams) (*model.User, error) {
	email := common.NormalizeEmail(p.Email)

	user, err := stores.Users().GetByExternalID(ctx, p.ExternalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("getting user by external id: %w", err)
	}

	if user == nil {
		user = &model.User{
			ID:         id.New(),
			ExternalID: p.ExternalID,
			Email:      email,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
		}
		applyAssignment(user, p)
		if err := checkAssignment(ctx, stores, user); err != nil {
			return nil, err
		}
		if err := stores.Users().Create(ctx, user); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		slog.InfoContext(ctx, "user created from identity provider",
			"user_id", user.ID,
			"external_user_id", user.ExternalID,
			"organization_id", user.OrganizationID,
		)
		return user, nil
	}

	if email != "" {
		user.Email = email
	}
	if p.FirstName != "" {
		user.FirstName = p.FirstName
	}
	if p.LastName != "" {
		user.LastName = p.LastName
	}

	previousOrg := user.OrganizationID
	applyAssignment(user, p)
	if !sameID(previousOrg, user.OrganizationID) {
		user.ImpersonatingUserID = nil
		if previousOrg != nil {
			if _, err := stores.Assignments().DeleteByStaff(ctx, user.ID); err != nil {
				return nil, fmt.Errorf("deleting assignments from previous organization: %w", err)
			}
		}
	}

	if p.ReactivateIfDeleted && user.IsDeleted() {
		user.DeletedAt = nil
		slog.InfoContext(ctx, "reactivating soft-deleted user", "user_id", user.ID)
	}

	if err := checkAssignment(ctx, stores, user); err != nil {
		return nil, err
	}
	if err := stores.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}

func applyAssignment(user *model.User, p UpsertUserParams) {
	if p.OrganizationID != nil {
		user.OrganizationID = p.OrganizationID
	}
	if p.Role != nil {
		user.Role = p.Role
		if *p.Role != model.RoleClient {
			user.CustomerID = nil
		}
	}
	if p.CustomerID != nil {
		user.CustomerID = p.CustomerID
	}
}

// checkAssignment enforces the role invariants before a write.
func checkAssignment(ctx context.Context, stores StoreProvider, user *model.User) error {
	if user.Role != nil && user.OrganizationID == nil {
		return ErrRoleWithoutOrg
	}
	if !user.HasRole(model.RoleClient) {
		return nil
	}
	if user.CustomerID == nil {
		return ErrCustomerRequired
	}
	customer, err := stores.Customers().GetByID(ctx, *user.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("getting customer: %w", err)
	}
	if customer.OrganizationID != *user.OrganizationID {
		return ErrCrossOrganization
	}
	return nil
}

func syncFromInvitation(ctx context.Context, stores StoreProvider, inv *model.Invitation, p UpsertUserParams) (*model.User, error) {
	p.OrganizationID = &inv.OrganizationID
	p.Role = model.RolePtr(inv.Role)
	p.CustomerID = inv.CustomerID
	p.ReactivateIfDeleted = true
	if p.Email == "" {
		p.Email = inv.Email
	}

	user, err := upsertUser(ctx, stores, p)
	if err != nil {
		return nil, err
	}

	if err := stores.Invitations().Delete(ctx, inv.ID); err != nil {
		return nil, fmt.Errorf("deleting consumed invitation: %w", err)
	}
	return user, nil
}

func softDeleteUser(ctx context.Context, stores StoreProvider, user *model.User, at time.Time) error {
	if err := stores.Users().SoftDelete(ctx, user.ID, at); err != nil {
		return fmt.Errorf("soft-deleting user: %w", err)
	}
	if user.HasRole(model.RoleStaff) {
		n, err := stores.Assignments().DeleteByStaff(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("deleting staff assignments: %w", err)
		}
		slog.InfoContext(ctx, "removed staff assignments", "user_id", user.ID, "count", n)
	}
	if err := stores.Users().ClearImpersonationOf(ctx, user.ID); err != nil {
		return fmt.Errorf("clearing impersonation: %w", err)
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
