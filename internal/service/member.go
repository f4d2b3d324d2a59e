package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/store"
)

type ChangeRoleInput struct {
	Role model.Role
	// ExpectedRole, when set, must match the member's current role.
	ExpectedRole *model.Role
}

func (in ChangeRoleInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Role, validation.Required, validation.In(model.RoleAdmin, model.RoleStaff, model.RoleClient)),
	)
	if err != nil {
		return validationError(err)
	}
	return nil
}

type MemberService interface {
	List(ctx context.Context, rc *RequestContext) ([]model.User, error)
	// Remove deletes the provider membership and soft-deletes the member.
	Remove(ctx context.Context, rc *RequestContext, userID int64) error
	ChangeRole(ctx context.Context, rc *RequestContext, userID int64, in ChangeRoleInput) (*model.User, error)
	AssignCustomer(ctx context.Context, rc *RequestContext, staffUserID, customerID int64) (*model.CustomerAssignment, error)
	ListAssignments(ctx context.Context, rc *RequestContext, staffUserID int64) ([]model.CustomerAssignment, error)
}

type memberService struct {
	stores   StoreProvider
	txRunner TxRunner
	provider idp.Provider
	events   *eventPublisher
	now      func() time.Time
}

func NewMemberService(stores StoreProvider, txRunner TxRunner, provider idp.Provider, producer queue.Producer, now func() time.Time) MemberService {
	return &memberService{
		stores:   stores,
		txRunner: txRunner,
		provider: provider,
		events:   newEventPublisher(producer),
		now:      now,
	}
}

func (s *memberService) List(ctx context.Context, rc *RequestContext) ([]model.User, error) {
	if err := Authorize(rc, OpListMembers, nil); err != nil {
		return nil, err
	}
	users, err := s.stores.Users().ListActiveByOrganization(ctx, rc.OrganizationID())
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return users, nil
}

func (s *memberService) Remove(ctx context.Context, rc *RequestContext, userID int64) error {
	target, err := s.member(ctx, userID)
	if err != nil {
		return err
	}
	if err := Authorize(rc, OpRemoveMember, target); err != nil {
		return err
	}

	// The local soft delete is authoritative. A membership the provider
	// still holds only lets the user authenticate, not resolve.
	s.deleteProviderMembership(ctx, rc, target)

	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		user, err := stores.Users().GetByID(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("getting member: %w", err)
		}
		return softDeleteUser(ctx, stores, user, s.now())
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to remove member", "error", err, "user_id", target.ID)
		return err
	}

	slog.InfoContext(ctx, "member removed", "user_id", target.ID, "removed_by", rc.Literal.ID)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventMemberRemoved,
		OrganizationID: rc.OrganizationID(),
		ActorUserID:    rc.Literal.ID,
		SubjectUserID:  target.ID,
	})
	return nil
}

func (s *memberService) deleteProviderMembership(ctx context.Context, rc *RequestContext, target *model.User) {
	org, err := s.stores.Organizations().GetByID(ctx, rc.OrganizationID())
	if err != nil {
		slog.WarnContext(ctx, "could not load organization for provider membership delete", "error", err)
		return
	}
	memberships, err := s.provider.ListMemberships(ctx, target.ExternalID)
	if err != nil {
		slog.WarnContext(ctx, "could not list provider memberships", "error", err, "user_id", target.ID)
		return
	}
	for _, m := range memberships {
		if m.OrganizationID != org.ExternalID {
			continue
		}
		if err := s.provider.DeleteMembership(ctx, m.ID); err != nil && !idp.IsTerminal(err) {
			slog.WarnContext(ctx, "could not delete provider membership", "error", err, "membership_id", m.ID)
		}
	}
}

func (s *memberService) ChangeRole(ctx context.Context, rc *RequestContext, userID int64, in ChangeRoleInput) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	target, err := s.member(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(rc, OpChangeRole, target); err != nil {
		return nil, err
	}
	if in.Role == model.RoleClient || target.HasRole(model.RoleClient) {
		return nil, ErrClientRoleChange
	}

	var (
		user     *model.User
		previous model.Role
	)
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		user, err = stores.Users().GetByID(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("getting member: %w", err)
		}
		if user.Role != nil {
			previous = *user.Role
		}
		if in.ExpectedRole != nil && previous != *in.ExpectedRole {
			return ErrRoleMismatch
		}
		if previous == in.Role {
			return nil
		}
		user.Role = model.RolePtr(in.Role)
		if previous == model.RoleAdmin {
			user.ImpersonatingUserID = nil
		}
		return stores.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	if previous == in.Role {
		return user, nil
	}

	slog.InfoContext(ctx, "member role changed",
		"user_id", user.ID,
		"from", previous,
		"to", in.Role,
		"changed_by", rc.Literal.ID,
	)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventMemberRoleChanged,
		OrganizationID: rc.OrganizationID(),
		ActorUserID:    rc.Literal.ID,
		SubjectUserID:  user.ID,
	})
	return user, nil
}

func (s *memberService) AssignCustomer(ctx context.Context, rc *RequestContext, staffUserID, customerID int64) (*model.CustomerAssignment, error) {
	target, err := s.member(ctx, staffUserID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(rc, OpAssignCustomer, target); err != nil {
		return nil, err
	}
	if !target.HasRole(model.RoleStaff) {
		return nil, ErrNotStaff
	}

	customer, err := s.stores.Customers().GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("getting customer: %w", err)
	}
	if err := CheckOrganization(rc, customer.OrganizationID); err != nil {
		return nil, err
	}

	var assignment *model.CustomerAssignment
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		existing, err := stores.Assignments().ListByStaff(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("listing assignments: %w", err)
		}
		if i := slices.IndexFunc(existing, func(a model.CustomerAssignment) bool { return a.CustomerID == customer.ID }); i >= 0 {
			assignment = &existing[i]
			return nil
		}
		assignment = &model.CustomerAssignment{
			ID:             id.New(),
			OrganizationID: customer.OrganizationID,
			StaffUserID:    target.ID,
			CustomerID:     customer.ID,
		}
		return stores.Assignments().Create(ctx, assignment)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "customer assigned", "user_id", target.ID, "customer_id", customer.ID)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventCustomerAssigned,
		OrganizationID: customer.OrganizationID,
		ActorUserID:    rc.Literal.ID,
		SubjectUserID:  target.ID,
	})
	return assignment, nil
}

func (s *memberService) ListAssignments(ctx context.Context, rc *RequestContext, staffUserID int64) ([]model.CustomerAssignment, error) {
	target, err := s.member(ctx, staffUserID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(rc, OpListMembers, target); err != nil {
		return nil, err
	}
	assignments, err := s.stores.Assignments().ListByStaff(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	return assignments, nil
}

// member loads an active user. Removed users are reported as not found.
func (s *memberService) member(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.stores.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user.IsDeleted() {
		return nil, ErrUserNotFound
	}
	return user, nil
}
