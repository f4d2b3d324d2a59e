package idp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clientdesk.app/identity/core/config"
	"github.com/workos/workos-go/v6/pkg/organizations"
	"github.com/workos/workos-go/v6/pkg/usermanagement"
	"github.com/workos/workos-go/v6/pkg/workos_errors"
)

type workOSProvider struct {
	clientID string
}

// NewWorkOS returns a Provider backed by the WorkOS API.
func NewWorkOS(cfg config.WorkOSConfig) Provider {
	usermanagement.SetAPIKey(cfg.APIKey)
	organizations.SetAPIKey(cfg.APIKey)
	return &workOSProvider{clientID: cfg.ClientID}
}

func (p *workOSProvider) GetInvitation(ctx context.Context, invitationID string) (*Invitation, error) {
	inv, err := usermanagement.GetInvitation(ctx, usermanagement.GetInvitationOpts{
		Invitation: invitationID,
	})
	if err != nil {
		return nil, wrap("get invitation", err)
	}
	return toInvitation(inv), nil
}

func (p *workOSProvider) SendInvitation(ctx context.Context, params SendInvitationParams) (*Invitation, error) {
	inv, err := usermanagement.SendInvitation(ctx, usermanagement.SendInvitationOpts{
		Email:          params.Email,
		OrganizationID: params.OrganizationID,
		InviterUserID:  params.InviterUserID,
		RoleSlug:       params.RoleSlug,
		ExpiresInDays:  params.ExpiresInDays,
	})
	if err != nil {
		return nil, wrap("send invitation", err)
	}
	return toInvitation(inv), nil
}

func (p *workOSProvider) RevokeInvitation(ctx context.Context, invitationID string) error {
	_, err := usermanagement.RevokeInvitation(ctx, usermanagement.RevokeInvitationOpts{
		Invitation: invitationID,
	})
	if err != nil {
		return wrap("revoke invitation", err)
	}
	return nil
}

func (p *workOSProvider) ListMemberships(ctx context.Context, userID string, statuses ...MembershipStatus) ([]Membership, error) {
	opts := usermanagement.ListOrganizationMembershipsOpts{UserID: userID}
	for _, s := range statuses {
		opts.Statuses = append(opts.Statuses, usermanagement.OrganizationMembershipStatus(s))
	}

	var out []Membership
	for {
		resp, err := usermanagement.ListOrganizationMemberships(ctx, opts)
		if err != nil {
			return nil, wrap("list memberships", err)
		}
		for _, m := range resp.Data {
			out = append(out, toMembership(m))
		}
		if resp.ListMetadata.After == "" {
			return out, nil
		}
		opts.After = resp.ListMetadata.After
	}
}

func (p *workOSProvider) CreateMembership(ctx context.Context, userID, organizationID, roleSlug string) (*Membership, error) {
	m, err := usermanagement.CreateOrganizationMembership(ctx, usermanagement.CreateOrganizationMembershipOpts{
		UserID:         userID,
		OrganizationID: organizationID,
		RoleSlug:       roleSlug,
	})
	if err != nil {
		return nil, wrap("create membership", err)
	}
	out := toMembership(m)
	return &out, nil
}

func (p *workOSProvider) DeleteMembership(ctx context.Context, membershipID string) error {
	err := usermanagement.DeleteOrganizationMembership(ctx, usermanagement.DeleteOrganizationMembershipOpts{
		OrganizationMembership: membershipID,
	})
	if err != nil {
		return wrap("delete membership", err)
	}
	return nil
}

func (p *workOSProvider) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := usermanagement.GetUser(ctx, usermanagement.GetUserOpts{User: userID})
	if err != nil {
		return nil, wrap("get user", err)
	}
	return toUser(u), nil
}

func (p *workOSProvider) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org, err := organizations.CreateOrganization(ctx, organizations.CreateOrganizationOpts{Name: name})
	if err != nil {
		return nil, wrap("create organization", err)
	}
	return &Organization{ID: org.ID, Name: org.Name}, nil
}

func (p *workOSProvider) UpdateOrganization(ctx context.Context, organizationID, name string) (*Organization, error) {
	org, err := organizations.UpdateOrganization(ctx, organizations.UpdateOrganizationOpts{
		Organization: organizationID,
		Name:         name,
	})
	if err != nil {
		return nil, wrap("update organization", err)
	}
	return &Organization{ID: org.ID, Name: org.Name}, nil
}

func (p *workOSProvider) AuthenticateWithCode(ctx context.Context, code string) (*Session, error) {
	resp, err := usermanagement.AuthenticateWithCode(ctx, usermanagement.AuthenticateWithCodeOpts{
		ClientID: p.clientID,
		Code:     code,
	})
	if err != nil {
		return nil, wrap("authenticate with code", err)
	}

	session := &Session{
		User:           *toUser(resp.User),
		OrganizationID: resp.OrganizationID,
		AccessToken:    resp.AccessToken,
		RefreshToken:   resp.RefreshToken,
	}
	if resp.Impersonator != nil {
		session.Impersonator = resp.Impersonator.Email
	}
	return session, nil
}

func wrap(op string, err error) error {
	e := &Error{Op: op, Err: err}
	var httpErr workos_errors.HTTPError
	if errors.As(err, &httpErr) {
		e.Status = httpErr.Code
	}
	return e
}

func toInvitation(inv usermanagement.Invitation) *Invitation {
	out := &Invitation{
		ID:             inv.ID,
		Email:          inv.Email,
		State:          string(inv.State),
		OrganizationID: inv.OrganizationID,
	}
	if inv.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, inv.ExpiresAt)
		if err != nil {
			slog.Warn("unparseable invitation expiry from provider", "invitation_id", inv.ID, "expires_at", inv.ExpiresAt)
		} else {
			out.ExpiresAt = expires
		}
	}
	return out
}

func toMembership(m usermanagement.OrganizationMembership) Membership {
	return Membership{
		ID:             m.ID,
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		Status:         MembershipStatus(m.Status),
		Role:           RoleLabel{Slug: m.Role.Slug},
	}
}

func toUser(u usermanagement.User) *User {
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
