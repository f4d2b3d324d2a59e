package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/store"
)

// LoginResult is a completed code exchange.
type LoginResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

type LoginService interface {
	// ExchangeCode completes a provider login and syncs the user.
	ExchangeCode(ctx context.Context, code string) (*LoginResult, error)
	// SyncOnLogin reconciles an authenticated provider user with local state.
	SyncOnLogin(ctx context.Context, identity LoginIdentity) (*model.User, error)
	// SyncByExternalID fetches the provider profile and runs SyncOnLogin.
	SyncByExternalID(ctx context.Context, externalUserID string) (*model.User, error)
}

type loginService struct {
	stores   StoreProvider
	txRunner TxRunner
	resolver *InvitationResolver
	provider idp.Provider
	events   *eventPublisher
}

func NewLoginService(stores StoreProvider, txRunner TxRunner, resolver *InvitationResolver, provider idp.Provider, producer queue.Producer) LoginService {
	return &loginService{
		stores:   stores,
		txRunner: txRunner,
		resolver: resolver,
		provider: provider,
		events:   newEventPublisher(producer),
	}
}

func (s *loginService) ExchangeCode(ctx context.Context, code string) (*LoginResult, error) {
	session, err := s.provider.AuthenticateWithCode(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to authenticate with code", "error", err)
		if idp.IsTerminal(err) || idp.StatusOf(err) == http.StatusBadRequest || idp.StatusOf(err) == http.StatusUnauthorized {
			return nil, ErrInvalidCode
		}
		return nil, providerError("authenticate with code", err)
	}

	user, err := s.SyncOnLogin(ctx, LoginIdentity{
		ExternalID: session.User.ID,
		Email:      session.User.Email,
		FirstName:  session.User.FirstName,
		LastName:   session.User.LastName,
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         user,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}, nil
}

func (s *loginService) SyncByExternalID(ctx context.Context, externalUserID string) (*model.User, error) {
	profile, err := s.provider.GetUser(ctx, externalUserID)
	if err != nil {
		return nil, providerError("get user", err)
	}
	return s.SyncOnLogin(ctx, LoginIdentity{
		ExternalID: profile.ID,
		Email:      profile.Email,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
	})
}

func (s *loginService) SyncOnLogin(ctx context.Context, identity LoginIdentity) (*model.User, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ExternalUserID: logger.Ptr(identity.ExternalID),
		Component:      "identity.login_sync",
	})
	span := logger.StartSpan(ctx, "identity.login_sync")
	defer span.End()
	ctx = span.Context()

	existing, err := s.stores.Users().GetByExternalID(ctx, identity.ExternalID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			return nil, fmt.Errorf("getting user by external id: %w", err)
		}
		existing = nil
	}

	// Resolution talks to the provider, so it runs before the transaction.
	res, err := s.resolver.ResolveLogin(ctx, s.stores, identity, existing)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	params := UpsertUserParams{
		ExternalID: identity.ExternalID,
		Email:      identity.Email,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
	}
	if res.Organization != nil {
		params.OrganizationID = &res.Organization.ID
		params.Role = res.Role
		params.CustomerID = res.CustomerID
	}
	params.ReactivateIfDeleted = res.Invitation != nil

	var user *model.User
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		user, err = upsertUser(ctx, stores, params)
		if err != nil {
			return err
		}
		if res.Invitation != nil {
			if err := stores.Invitations().Delete(ctx, res.Invitation.ID); err != nil {
				return fmt.Errorf("deleting consumed invitation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "login sync failed", "error", err)
		return nil, err
	}

	if user.OrganizationID != nil {
		span.SetIdentity(*user.OrganizationID, user.ID)
	} else {
		span.SetIdentity(0, user.ID)
	}

	if user.IsDeleted() {
		slog.InfoContext(ctx, "removed user attempted to sign in", "user_id", user.ID)
		return nil, ErrUserDeactivated
	}

	slog.InfoContext(ctx, "user synced on login",
		"user_id", user.ID,
		"organization_id", user.OrganizationID,
		"source", res.Source,
	)
	var orgID int64
	if user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}
	event := queue.IdentityEvent{Type: queue.EventUserSynced, OrganizationID: orgID, SubjectUserID: user.ID}
	if res.Invitation != nil {
		event.InvitationID = res.Invitation.ID
	}
	s.events.publish(ctx, event)
	return user, nil
}
