package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"clientdesk.app/identity/common"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/store"
)

// AcceptedInvitation is the payload of a verified invitation.accepted event.
// All ids are provider ids.
type AcceptedInvitation struct {
	InvitationID   string
	OrganizationID string
	UserID         string
	Email          string
}

// eventLookup is one step of the event resolution chain. It returns nil, nil
// when it has no match so the next step runs.
type eventLookup func(ctx context.Context, stores StoreProvider, ev AcceptedInvitation, org *model.Organization) (*model.Invitation, error)

// LoginIdentity is a freshly authenticated provider user.
type LoginIdentity struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// LoginResolution is what login-time sync should attach to the user.
// A nil Organization means the user's assignment is left as is.
type LoginResolution struct {
	Organization *model.Organization
	Role         *model.Role
	CustomerID   *int64
	Invitation   *model.Invitation
	Source       string
}

type loginInput struct {
	identity LoginIdentity
	email    string
	user     *model.User
}

// loginStep is one step of the login resolution chain. done stops the chain.
type loginStep func(ctx context.Context, stores StoreProvider, in loginInput, res *LoginResolution) (done bool, err error)

// InvitationResolver matches accepted invitations and logins to pending
// invitations across the provider and the local store.
type InvitationResolver struct {
	provider idp.Provider
	now      func() time.Time

	eventChain []eventLookup
	loginChain []loginStep
}

func NewInvitationResolver(provider idp.Provider, now func() time.Time) *InvitationResolver {
	r := &InvitationResolver{provider: provider, now: now}
	r.eventChain = []eventLookup{r.byExternalID, r.byOrgAndEmail}
	r.loginChain = []loginStep{r.fromCurrentOrganization, r.fromMemberships, r.fromGlobalEmail}
	return r
}

// ResolveEvent finds the pending invitation an accepted event satisfies.
// It returns ErrNoMatchingInvitation when every lookup misses.
func (r *InvitationResolver) ResolveEvent(ctx context.Context, stores StoreProvider, ev AcceptedInvitation) (*model.Invitation, error) {
	org, err := stores.Organizations().GetByExternalID(ctx, ev.OrganizationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("getting organization by external id: %w", err)
	}

	for _, lookup := range r.eventChain {
		inv, err := lookup(ctx, stores, ev, org)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			return inv, nil
		}
	}
	return nil, ErrNoMatchingInvitation
}

func (r *InvitationResolver) byExternalID(ctx context.Context, stores StoreProvider, ev AcceptedInvitation, org *model.Organization) (*model.Invitation, error) {
	if ev.InvitationID == "" {
		return nil, nil
	}
	inv, err := stores.Invitations().GetByExternalID(ctx, ev.InvitationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting invitation by external id: %w", err)
	}
	if org != nil && inv.OrganizationID != org.ID {
		slog.WarnContext(ctx, "invitation belongs to a different organization than the event",
			"invitation_id", inv.ID,
			"invitation_organization_id", inv.OrganizationID,
			"event_organization_id", org.ID,
		)
		return nil, nil
	}
	return inv, nil
}

func (r *InvitationResolver) byOrgAndEmail(ctx context.Context, stores StoreProvider, ev AcceptedInvitation, org *model.Organization) (*model.Invitation, error) {
	email := common.NormalizeEmail(ev.Email)
	if email == "" || org == nil {
		return nil, nil
	}
	inv, err := stores.Invitations().GetPendingByOrgAndEmail(ctx, org.ID, email, r.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting pending invitation by email: %w", err)
	}
	slog.InfoContext(ctx, "resolved invitation by organization and email", "invitation_id", inv.ID)
	return inv, nil
}

// ResolveLogin decides which organization, role and invitation a login
// should sync. user is the existing local user, or nil.
func (r *InvitationResolver) ResolveLogin(ctx context.Context, stores StoreProvider, identity LoginIdentity, user *model.User) (*LoginResolution, error) {
	in := loginInput{identity: identity, email: common.NormalizeEmail(identity.Email), user: user}
	res := &LoginResolution{}
	for _, step := range r.loginChain {
		done, err := step(ctx, stores, in, res)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	if res.Organization != nil && res.Role == nil {
		res.Role = model.RolePtr(model.RoleStaff)
	}
	return res, nil
}

// fromCurrentOrganization handles a resend to an active user who already has
// an organization. Such users never switch organizations at login.
func (r *InvitationResolver) fromCurrentOrganization(ctx context.Context, stores StoreProvider, in loginInput, res *LoginResolution) (bool, error) {
	if in.user == nil || in.user.OrganizationID == nil || in.user.IsDeleted() {
		return false, nil
	}
	inv, err := stores.Invitations().GetPendingByOrgAndEmail(ctx, *in.user.OrganizationID, in.email, r.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("getting pending invitation for current organization: %w", err)
	}
	org, err := stores.Organizations().GetByID(ctx, inv.OrganizationID)
	if err != nil {
		return false, fmt.Errorf("getting organization: %w", err)
	}
	res.fromInvitation(org, inv, "current_organization")
	return true, nil
}

func (r *InvitationResolver) fromMemberships(ctx context.Context, stores StoreProvider, in loginInput, res *LoginResolution) (bool, error) {
	memberships, err := r.provider.ListMemberships(ctx, in.identity.ExternalID, idp.MembershipActive, idp.MembershipPending)
	if err != nil {
		slog.WarnContext(ctx, "listing provider memberships failed, falling back to email lookup", "error", err)
		return false, nil
	}

	for _, m := range memberships {
		if m.Status == idp.MembershipInactive {
			continue
		}
		org, err := stores.Organizations().GetByExternalID(ctx, m.OrganizationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.DebugContext(ctx, "membership organization not synced locally", "external_organization_id", m.OrganizationID)
				continue
			}
			return false, fmt.Errorf("getting organization by external id: %w", err)
		}

		inv, err := stores.Invitations().GetPendingByOrgAndEmail(ctx, org.ID, in.email, r.now())
		switch {
		case err == nil:
			res.fromInvitation(org, inv, "membership_invitation")
			return true, nil
		case !errors.Is(err, store.ErrNotFound):
			return false, fmt.Errorf("getting pending invitation: %w", err)
		}

		if res.Organization != nil {
			continue
		}
		role := idp.NormalizeRole(m.Role)
		if role != nil && *role == model.RoleClient {
			// Client membership without an invitation carries no customer.
			continue
		}
		res.Organization = org
		res.Role = role
		res.Source = "membership_role"
	}
	return res.Organization != nil, nil
}

func (r *InvitationResolver) fromGlobalEmail(ctx context.Context, stores StoreProvider, in loginInput, res *LoginResolution) (bool, error) {
	if in.email == "" {
		return false, nil
	}
	inv, err := stores.Invitations().GetNewestPendingByEmail(ctx, in.email, r.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("getting newest pending invitation: %w", err)
	}
	org, err := stores.Organizations().GetByID(ctx, inv.OrganizationID)
	if err != nil {
		return false, fmt.Errorf("getting organization: %w", err)
	}

	_, err = r.provider.CreateMembership(ctx, in.identity.ExternalID, org.ExternalID, string(inv.Role))
	if err != nil {
		if idp.StatusOf(err) != http.StatusConflict {
			return false, providerError("create membership", err)
		}
		slog.InfoContext(ctx, "user already a member at the provider", "external_organization_id", org.ExternalID)
	}

	res.fromInvitation(org, inv, "global_email")
	return true, nil
}

func (res *LoginResolution) fromInvitation(org *model.Organization, inv *model.Invitation, source string) {
	res.Organization = org
	res.Role = model.RolePtr(inv.Role)
	res.CustomerID = inv.CustomerID
	res.Invitation = inv
	res.Source = source
}
