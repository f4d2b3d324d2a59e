package service_test

import (
	"context"
	"sync"

	"clientdesk.app/identity/internal/billing"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
)

type mockProvider struct {
	getInvitationFn        func(ctx context.Context, invitationID string) (*idp.Invitation, error)
	sendInvitationFn       func(ctx context.Context, params idp.SendInvitationParams) (*idp.Invitation, error)
	revokeInvitationFn     func(ctx context.Context, invitationID string) error
	listMembershipsFn      func(ctx context.Context, userID string, statuses ...idp.MembershipStatus) ([]idp.Membership, error)
	createMembershipFn     func(ctx context.Context, userID, organizationID, roleSlug string) (*idp.Membership, error)
	deleteMembershipFn     func(ctx context.Context, membershipID string) error
	getUserFn              func(ctx context.Context, userID string) (*idp.User, error)
	createOrganizationFn   func(ctx context.Context, name string) (*idp.Organization, error)
	updateOrganizationFn   func(ctx context.Context, organizationID, name string) (*idp.Organization, error)
	authenticateWithCodeFn func(ctx context.Context, code string) (*idp.Session, error)

	revokedInvitations []string
	createdMemberships []string
	deletedMemberships []string
	listMembershipCall int
}

func (m *mockProvider) GetInvitation(ctx context.Context, invitationID string) (*idp.Invitation, error) {
	if m.getInvitationFn != nil {
		return m.getInvitationFn(ctx, invitationID)
	}
	return &idp.Invitation{ID: invitationID}, nil
}

func (m *mockProvider) SendInvitation(ctx context.Context, params idp.SendInvitationParams) (*idp.Invitation, error) {
	if m.sendInvitationFn != nil {
		return m.sendInvitationFn(ctx, params)
	}
	return &idp.Invitation{ID: "inv_" + params.Email, Email: params.Email, OrganizationID: params.OrganizationID}, nil
}

func (m *mockProvider) RevokeInvitation(ctx context.Context, invitationID string) error {
	m.revokedInvitations = append(m.revokedInvitations, invitationID)
	if m.revokeInvitationFn != nil {
		return m.revokeInvitationFn(ctx, invitationID)
	}
	return nil
}

func (m *mockProvider) ListMemberships(ctx context.Context, userID string, statuses ...idp.MembershipStatus) ([]idp.Membership, error) {
	m.listMembershipCall++
	if m.listMembershipsFn != nil {
		return m.listMembershipsFn(ctx, userID, statuses...)
	}
	return nil, nil
}

func (m *mockProvider) CreateMembership(ctx context.Context, userID, organizationID, roleSlug string) (*idp.Membership, error) {
	m.createdMemberships = append(m.createdMemberships, organizationID)
	if m.createMembershipFn != nil {
		return m.createMembershipFn(ctx, userID, organizationID, roleSlug)
	}
	return &idp.Membership{ID: "om_" + userID, UserID: userID, OrganizationID: organizationID, Status: idp.MembershipActive}, nil
}

func (m *mockProvider) DeleteMembership(ctx context.Context, membershipID string) error {
	m.deletedMemberships = append(m.deletedMemberships, membershipID)
	if m.deleteMembershipFn != nil {
		return m.deleteMembershipFn(ctx, membershipID)
	}
	return nil
}

func (m *mockProvider) GetUser(ctx context.Context, userID string) (*idp.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return &idp.User{ID: userID}, nil
}

func (m *mockProvider) CreateOrganization(ctx context.Context, name string) (*idp.Organization, error) {
	if m.createOrganizationFn != nil {
		return m.createOrganizationFn(ctx, name)
	}
	return &idp.Organization{ID: "org_new", Name: name}, nil
}

func (m *mockProvider) UpdateOrganization(ctx context.Context, organizationID, name string) (*idp.Organization, error) {
	if m.updateOrganizationFn != nil {
		return m.updateOrganizationFn(ctx, organizationID, name)
	}
	return &idp.Organization{ID: organizationID, Name: name}, nil
}

func (m *mockProvider) AuthenticateWithCode(ctx context.Context, code string) (*idp.Session, error) {
	if m.authenticateWithCodeFn != nil {
		return m.authenticateWithCodeFn(ctx, code)
	}
	return nil, &idp.Error{Op: "authenticate", Status: 400}
}

type recordingProducer struct {
	mu     sync.Mutex
	events []queue.IdentityEvent
}

func (p *recordingProducer) Publish(_ context.Context, event queue.IdentityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProducer) Close() error {
	return nil
}

func (p *recordingProducer) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixedLimits struct {
	limits billing.Limits
}

// GetLimitsForSubscription grants the fixed limits to entitled subscriptions
// only, like billing.PlanLimits.
func (f fixedLimits) GetLimitsForSubscription(status model.SubscriptionStatus, _ string) billing.Limits {
	if !billing.Entitled(status) {
		return billing.Limits{}
	}
	return f.limits
}
