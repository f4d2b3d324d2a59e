package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/store"
)

// RequestContext carries both identities of a request. Role checks always
// read Literal; data access is scoped to Effective.
type RequestContext struct {
	Literal   *model.User
	Effective *model.User

	// TokenImpersonated is set when the provider's access token carries an act claim.
	TokenImpersonated bool
}

// Impersonating reports whether either impersonation signal is present.
func (rc *RequestContext) Impersonating() bool {
	return rc.TokenImpersonated || rc.Literal.ImpersonatingUserID != nil
}

// OrganizationID is the caller's organization, or 0 when the caller has none.
func (rc *RequestContext) OrganizationID() int64 {
	if rc.Literal.OrganizationID == nil {
		return 0
	}
	return *rc.Literal.OrganizationID
}

// Operation names an access-controlled action.
type Operation string

const (
	OpReadOrganization   Operation = "organization.read"
	OpListMembers        Operation = "members.list"
	OpWriteRecords       Operation = "records.write"
	OpSendInvitation     Operation = "invitations.send"
	OpResendInvitation   Operation = "invitations.resend"
	OpRevokeInvitation   Operation = "invitations.revoke"
	OpListInvitations    Operation = "invitations.list"
	OpRemoveMember       Operation = "members.remove"
	OpChangeRole         Operation = "members.change_role"
	OpAssignCustomer     Operation = "members.assign_customer"
	OpUpdateOrgSettings  Operation = "organization.update_settings"
	OpUpdateBilling      Operation = "organization.update_billing"
	OpStartImpersonation Operation = "impersonation.start"
)

type policy struct {
	adminOnly     bool
	writes        bool
	noImpersonate bool
	notSelf       bool
}

var policies = map[Operation]policy{
	OpReadOrganization:   {},
	OpListMembers:        {},
	OpWriteRecords:       {writes: true},
	OpSendInvitation:     {adminOnly: true, writes: true},
	OpResendInvitation:   {adminOnly: true, writes: true},
	OpRevokeInvitation:   {adminOnly: true, writes: true},
	OpListInvitations:    {adminOnly: true},
	OpRemoveMember:       {adminOnly: true, writes: true, notSelf: true},
	OpChangeRole:         {adminOnly: true, writes: true, notSelf: true, noImpersonate: true},
	OpAssignCustomer:     {adminOnly: true, writes: true},
	OpUpdateOrgSettings:  {adminOnly: true, writes: true, noImpersonate: true},
	OpUpdateBilling:      {adminOnly: true, writes: true, noImpersonate: true},
	OpStartImpersonation: {adminOnly: true, notSelf: true},
}

// Authorize checks op for the caller. target is the user acted upon, if any.
func Authorize(rc *RequestContext, op Operation, target *model.User) error {
	p, ok := policies[op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrForbidden, op)
	}
	if rc.Literal.OrganizationID == nil {
		return ErrNoOrganization
	}
	if p.adminOnly && !rc.Literal.HasRole(model.RoleAdmin) {
		return ErrAdminRequired
	}
	if p.writes && rc.Literal.HasRole(model.RoleClient) {
		return ErrReadOnly
	}
	if p.noImpersonate && rc.Impersonating() {
		return ErrImpersonationBlocked
	}
	if target != nil {
		if !target.InOrganization(rc.OrganizationID()) {
			return ErrCrossOrganization
		}
		if p.notSelf && target.ID == rc.Literal.ID {
			return ErrSelfAction
		}
	}
	return nil
}

// CheckOrganization enforces organization isolation for an entity owned by orgID.
func CheckOrganization(rc *RequestContext, orgID int64) error {
	if rc.Literal.OrganizationID == nil {
		return ErrNoOrganization
	}
	if orgID != rc.OrganizationID() {
		return ErrCrossOrganization
	}
	return nil
}

type AccessService interface {
	// Resolve builds the request context for an authenticated provider user.
	Resolve(ctx context.Context, externalUserID string, tokenImpersonated bool) (*RequestContext, error)
	StartImpersonating(ctx context.Context, rc *RequestContext, targetUserID int64) (*RequestContext, error)
	StopImpersonating(ctx context.Context, rc *RequestContext) (*RequestContext, error)
}

type accessService struct {
	stores   StoreProvider
	txRunner TxRunner
	events   *eventPublisher
}

func NewAccessService(stores StoreProvider, txRunner TxRunner, producer queue.Producer) AccessService {
	return &accessService{stores: stores, txRunner: txRunner, events: newEventPublisher(producer)}
}

func (s *accessService) Resolve(ctx context.Context, externalUserID string, tokenImpersonated bool) (*RequestContext, error) {
	literal, err := s.stores.Users().GetByExternalID(ctx, externalUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("getting user by external id: %w", err)
	}
	if literal.IsDeleted() {
		return nil, ErrUserDeactivated
	}

	rc := &RequestContext{Literal: literal, Effective: literal, TokenImpersonated: tokenImpersonated}
	if !literal.HasRole(model.RoleAdmin) || literal.ImpersonatingUserID == nil {
		return rc, nil
	}

	target, err := s.stores.Users().GetByID(ctx, *literal.ImpersonatingUserID)
	switch {
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("getting impersonated user: %w", err)
	case err != nil, !validImpersonationTarget(literal, target):
		slog.WarnContext(ctx, "ignoring invalid impersonation target",
			"user_id", literal.ID,
			"impersonating_user_id", *literal.ImpersonatingUserID,
		)
		return rc, nil
	}

	rc.Effective = target
	return rc, nil
}

func validImpersonationTarget(admin, target *model.User) bool {
	return target != nil &&
		!target.IsDeleted() &&
		target.ID != admin.ID &&
		admin.OrganizationID != nil &&
		target.InOrganization(*admin.OrganizationID)
}

func (s *accessService) StartImpersonating(ctx context.Context, rc *RequestContext, targetUserID int64) (*RequestContext, error) {
	target, err := s.stores.Users().GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting target user: %w", err)
	}
	if target.IsDeleted() {
		return nil, ErrUserNotFound
	}
	if err := Authorize(rc, OpStartImpersonation, target); err != nil {
		return nil, err
	}

	var literal *model.User
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		literal, err = stores.Users().GetByID(ctx, rc.Literal.ID)
		if err != nil {
			return fmt.Errorf("getting literal user: %w", err)
		}
		literal.ImpersonatingUserID = &target.ID
		return stores.Users().Update(ctx, literal)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "impersonation started", "user_id", literal.ID, "target_user_id", target.ID)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventImpersonationStarted,
		OrganizationID: rc.OrganizationID(),
		ActorUserID:    literal.ID,
		SubjectUserID:  target.ID,
	})
	return &RequestContext{Literal: literal, Effective: target, TokenImpersonated: rc.TokenImpersonated}, nil
}

func (s *accessService) StopImpersonating(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
	if rc.Literal.ImpersonatingUserID == nil {
		return &RequestContext{Literal: rc.Literal, Effective: rc.Literal, TokenImpersonated: rc.TokenImpersonated}, nil
	}
	previous := *rc.Literal.ImpersonatingUserID

	var literal *model.User
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		literal, err = stores.Users().GetByID(ctx, rc.Literal.ID)
		if err != nil {
			return fmt.Errorf("getting literal user: %w", err)
		}
		literal.ImpersonatingUserID = nil
		return stores.Users().Update(ctx, literal)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "impersonation stopped", "user_id", literal.ID, "target_user_id", previous)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventImpersonationStopped,
		OrganizationID: rc.OrganizationID(),
		ActorUserID:    literal.ID,
		SubjectUserID:  previous,
	})
	return &RequestContext{Literal: literal, Effective: literal, TokenImpersonated: rc.TokenImpersonated}, nil
}
