package service

import (
	"context"
	"errors"
	"log/slog"

	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
)

const EventInvitationAccepted = "invitation.accepted"

type WebhookService interface {
	// HandleInvitationAccepted syncs the user named by a verified
	// invitation.accepted event and consumes the matching invitation.
	// A replayed event returns ErrNoMatchingInvitation and writes nothing.
	HandleInvitationAccepted(ctx context.Context, ev AcceptedInvitation) (*model.User, error)
}

type webhookService struct {
	txRunner TxRunner
	resolver *InvitationResolver
	provider idp.Provider
	events   *eventPublisher
}

func NewWebhookService(txRunner TxRunner, resolver *InvitationResolver, provider idp.Provider, producer queue.Producer) WebhookService {
	return &webhookService{
		txRunner: txRunner,
		resolver: resolver,
		provider: provider,
		events:   newEventPublisher(producer),
	}
}

func (s *webhookService) HandleInvitationAccepted(ctx context.Context, ev AcceptedInvitation) (*model.User, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ExternalUserID: logger.Ptr(ev.UserID),
		InvitationID:   logger.Ptr(ev.InvitationID),
		EventType:      logger.Ptr(EventInvitationAccepted),
		Component:      "identity.webhook",
	})
	span := logger.StartSpan(ctx, "identity.webhook.invitation_accepted")
	defer span.End()
	ctx = span.Context()

	params := UpsertUserParams{ExternalID: ev.UserID, Email: ev.Email}
	if profile, err := s.provider.GetUser(ctx, ev.UserID); err != nil {
		slog.WarnContext(ctx, "could not fetch provider profile, syncing without names", "error", err)
	} else {
		params.FirstName = profile.FirstName
		params.LastName = profile.LastName
		if params.Email == "" {
			params.Email = profile.Email
		}
	}

	var (
		user *model.User
		inv  *model.Invitation
	)
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		inv, err = s.resolver.ResolveEvent(ctx, stores, ev)
		if err != nil {
			return err
		}
		user, err = syncFromInvitation(ctx, stores, inv, params)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNoMatchingInvitation) {
			slog.WarnContext(ctx, "no pending invitation matches accepted event",
				"external_organization_id", ev.OrganizationID,
			)
		} else {
			span.RecordError(err)
			slog.ErrorContext(ctx, "failed to sync accepted invitation", "error", err)
		}
		return nil, err
	}

	span.SetIdentity(inv.OrganizationID, user.ID)
	slog.InfoContext(ctx, "invitation accepted",
		"user_id", user.ID,
		"organization_id", inv.OrganizationID,
		"role", inv.Role,
	)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventInvitationAccepted,
		OrganizationID: inv.OrganizationID,
		SubjectUserID:  user.ID,
		InvitationID:   inv.ID,
	})
	return user, nil
}
