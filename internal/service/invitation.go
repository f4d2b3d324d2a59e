package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"clientdesk.app/identity/common"
	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/internal/billing"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/store"
)

const defaultInviteExpiryDays = 7

type SendInvitationInput struct {
	Email      string
	Role       model.Role
	CustomerID *int64
}

func (in SendInvitationInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Role, validation.Required, validation.In(model.RoleStaff, model.RoleClient)),
	)
	if err != nil {
		return validationError(err)
	}
	if in.Role == model.RoleClient && in.CustomerID == nil {
		return ErrCustomerRequired
	}
	return nil
}

type InvitationService interface {
	Send(ctx context.Context, rc *RequestContext, in SendInvitationInput) (*model.Invitation, error)
	// Resend replaces a pending invitation with a fresh one.
	Resend(ctx context.Context, rc *RequestContext, invitationID int64) (*model.Invitation, error)
	Revoke(ctx context.Context, rc *RequestContext, invitationID int64) error
	ListPending(ctx context.Context, rc *RequestContext) ([]model.Invitation, error)
}

type invitationService struct {
	stores     StoreProvider
	txRunner   TxRunner
	provider   idp.Provider
	limits     billing.LimitsProvider
	events     *eventPublisher
	now        func() time.Time
	expiryDays int
}

func NewInvitationService(
	stores StoreProvider,
	txRunner TxRunner,
	provider idp.Provider,
	limits billing.LimitsProvider,
	producer queue.Producer,
	now func() time.Time,
	expiryDays int,
) InvitationService {
	if expiryDays <= 0 {
		expiryDays = defaultInviteExpiryDays
	}
	return &invitationService{
		stores:     stores,
		txRunner:   txRunner,
		provider:   provider,
		limits:     limits,
		events:     newEventPublisher(producer),
		now:        now,
		expiryDays: expiryDays,
	}
}

func (s *invitationService) Send(ctx context.Context, rc *RequestContext, in SendInvitationInput) (*model.Invitation, error) {
	if err := Authorize(rc, OpSendInvitation, nil); err != nil {
		return nil, err
	}
	in.Email = common.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Role != model.RoleClient {
		in.CustomerID = nil
	}

	org, err := s.organization(ctx, rc)
	if err != nil {
		return nil, err
	}
	if in.CustomerID != nil {
		if err := s.checkCustomer(ctx, org.ID, *in.CustomerID); err != nil {
			return nil, err
		}
	}

	if _, err := s.stores.Users().GetActiveByOrgAndEmail(ctx, org.ID, in.Email); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking existing member: %w", err)
	}

	now := s.now()
	existing, err := s.stores.Invitations().GetLatestByOrgAndEmail(ctx, org.ID, in.Email)
	switch {
	case err == nil && !existing.IsExpired(now):
		return nil, ErrInvitationExists
	case err == nil:
		if err := s.stores.Invitations().Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("deleting stale invitation: %w", err)
		}
		slog.InfoContext(ctx, "deleted stale invitation", "invitation_id", existing.ID)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("checking existing invitation: %w", err)
	}

	if err := checkSeatLimit(ctx, s.stores, s.limits, org, in.Role, now, 0); err != nil {
		return nil, err
	}

	inv, err := s.sendAndStore(ctx, rc, org, in.Email, in.Role, in.CustomerID, nil)
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventInvitationSent,
		OrganizationID: org.ID,
		ActorUserID:    rc.Literal.ID,
		InvitationID:   inv.ID,
	})
	return inv, nil
}

func (s *invitationService) Resend(ctx context.Context, rc *RequestContext, invitationID int64) (*model.Invitation, error) {
	if err := Authorize(rc, OpResendInvitation, nil); err != nil {
		return nil, err
	}
	old, err := s.invitation(ctx, rc, invitationID)
	if err != nil {
		return nil, err
	}
	org, err := s.organization(ctx, rc)
	if err != nil {
		return nil, err
	}

	replacing := 0
	if !old.IsExpired(s.now()) {
		replacing = 1
	}
	if err := checkSeatLimit(ctx, s.stores, s.limits, org, old.Role, s.now(), replacing); err != nil {
		return nil, err
	}

	// An accepted invitation is consumed by the webhook or the next login sync;
	// resending it would hand the invitee a second seat.
	current, err := s.provider.GetInvitation(ctx, old.ExternalID)
	switch {
	case err == nil && current.State == idp.InvitationAccepted:
		slog.InfoContext(ctx, "invitation already accepted at provider, not resending", "invitation_id", old.ID)
		return nil, ErrInvitationAccepted
	case err != nil && !idp.IsTerminal(err):
		return nil, providerError("get invitation", err)
	}

	if err := s.provider.RevokeInvitation(ctx, old.ExternalID); err != nil {
		if !idp.IsTerminal(err) {
			return nil, providerError("revoke invitation", err)
		}
		slog.WarnContext(ctx, "provider invitation already gone", "invitation_id", old.ID, "error", err)
	}

	inv, err := s.sendAndStore(ctx, rc, org, old.Email, old.Role, old.CustomerID, old)
	if err != nil {
		// The provider side of old is gone, so its row must not be honored at login.
		if delErr := s.stores.Invitations().Delete(ctx, old.ID); delErr != nil {
			slog.ErrorContext(ctx, "failed to delete revoked invitation after failed resend", "error", delErr, "invitation_id", old.ID)
		}
		return nil, err
	}

	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventInvitationSent,
		OrganizationID: org.ID,
		ActorUserID:    rc.Literal.ID,
		InvitationID:   inv.ID,
	})
	return inv, nil
}

// sendAndStore creates the provider invitation and then its local row,
// replacing old when set. A failed local write revokes the provider invitation.
func (s *invitationService) sendAndStore(
	ctx context.Context,
	rc *RequestContext,
	org *model.Organization,
	email string,
	role model.Role,
	customerID *int64,
	old *model.Invitation,
) (*model.Invitation, error) {
	sent, err := s.provider.SendInvitation(ctx, idp.SendInvitationParams{
		Email:          email,
		OrganizationID: org.ExternalID,
		InviterUserID:  rc.Literal.ExternalID,
		RoleSlug:       string(role),
		ExpiresInDays:  s.expiryDays,
	})
	if err != nil {
		slog.ErrorContext(ctx, "provider rejected invitation", "error", err, "status", idp.StatusOf(err))
		return nil, providerError("send invitation", err)
	}

	inv := &model.Invitation{
		ID:             id.New(),
		ExternalID:     sent.ID,
		Email:          email,
		OrganizationID: org.ID,
		Role:           role,
		CustomerID:     customerID,
		InviterUserID:  &rc.Literal.ID,
		ExpiresAt:      sent.ExpiresAt,
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = s.now().AddDate(0, 0, s.expiryDays)
	}

	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if old != nil {
			if err := stores.Invitations().Delete(ctx, old.ID); err != nil {
				return fmt.Errorf("deleting replaced invitation: %w", err)
			}
		}
		// A concurrent send may have committed while the provider call was in flight.
		if err := s.checkInvitable(ctx, stores, org, email, role); err != nil {
			return err
		}
		return stores.Invitations().Create(ctx, inv)
	})
	if err != nil {
		slog.WarnContext(ctx, "invitation not stored, revoking at provider", "error", err, "external_invitation_id", sent.ID)
		if revokeErr := s.provider.RevokeInvitation(ctx, sent.ID); revokeErr != nil {
			slog.ErrorContext(ctx, "failed to revoke orphaned provider invitation", "error", revokeErr, "external_invitation_id", sent.ID)
		}
		if isRejection(err) {
			return nil, err
		}
		return nil, fmt.Errorf("storing invitation: %w", err)
	}

	slog.InfoContext(ctx, "invitation sent",
		"invitation_id", inv.ID,
		"organization_id", org.ID,
		"role", role,
	)
	return inv, nil
}

// checkInvitable enforces one unexpired invitation per (organization, email),
// no invitation for an active member, and the seat cap. It runs inside the
// transaction that stores the invitation.
func (s *invitationService) checkInvitable(ctx context.Context, stores StoreProvider, org *model.Organization, email string, role model.Role) error {
	if _, err := stores.Users().GetActiveByOrgAndEmail(ctx, org.ID, email); err == nil {
		return ErrAlreadyMember
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking existing member: %w", err)
	}

	now := s.now()
	if _, err := stores.Invitations().GetPendingByOrgAndEmail(ctx, org.ID, email, now); err == nil {
		return ErrInvitationExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking pending invitation: %w", err)
	}

	return checkSeatLimit(ctx, stores, s.limits, org, role, now, 0)
}

func isRejection(err error) bool {
	return errors.Is(err, ErrAlreadyMember) || errors.Is(err, ErrInvitationExists) || errors.Is(err, ErrPlanLimitReached)
}

func (s *invitationService) Revoke(ctx context.Context, rc *RequestContext, invitationID int64) error {
	if err := Authorize(rc, OpRevokeInvitation, nil); err != nil {
		return err
	}
	inv, err := s.invitation(ctx, rc, invitationID)
	if err != nil {
		return err
	}

	if err := s.provider.RevokeInvitation(ctx, inv.ExternalID); err != nil {
		if !idp.IsTerminal(err) {
			return providerError("revoke invitation", err)
		}
		slog.WarnContext(ctx, "provider invitation already resolved, removing local copy", "invitation_id", inv.ID, "error", err)
	}

	if err := s.stores.Invitations().Delete(ctx, inv.ID); err != nil {
		return fmt.Errorf("deleting invitation: %w", err)
	}

	slog.InfoContext(ctx, "invitation revoked", "invitation_id", inv.ID)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventInvitationRevoked,
		OrganizationID: inv.OrganizationID,
		ActorUserID:    rc.Literal.ID,
		InvitationID:   inv.ID,
	})
	return nil
}

func (s *invitationService) ListPending(ctx context.Context, rc *RequestContext) ([]model.Invitation, error) {
	if err := Authorize(rc, OpListInvitations, nil); err != nil {
		return nil, err
	}
	invitations, err := s.stores.Invitations().ListPendingByOrganization(ctx, rc.OrganizationID(), s.now())
	if err != nil {
		return nil, fmt.Errorf("listing pending invitations: %w", err)
	}
	return invitations, nil
}

func (s *invitationService) invitation(ctx context.Context, rc *RequestContext, invitationID int64) (*model.Invitation, error) {
	inv, err := s.stores.Invitations().GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("getting invitation: %w", err)
	}
	if err := CheckOrganization(rc, inv.OrganizationID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invitationService) organization(ctx context.Context, rc *RequestContext) (*model.Organization, error) {
	org, err := s.stores.Organizations().GetByID(ctx, rc.OrganizationID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	return org, nil
}

func (s *invitationService) checkCustomer(ctx context.Context, orgID, customerID int64) error {
	customer, err := s.stores.Customers().GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("getting customer: %w", err)
	}
	if customer.OrganizationID != orgID {
		return ErrCrossOrganization
	}
	return nil
}
