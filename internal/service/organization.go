package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/internal/billing"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/store"
)

type CreateOrganizationInput struct {
	Name string
}

func (in CreateOrganizationInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
	)
	if err != nil {
		return validationError(err)
	}
	return nil
}

// UpdateSettingsInput patches organization settings. Nil fields are left
// unchanged; a zero cap removes the organization's own cap.
type UpdateSettingsInput struct {
	Name         *string
	MaxStaff     *int
	MaxClients   *int
	MaxCustomers *int
}

func (in UpdateSettingsInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&in.MaxStaff, validation.Min(0)),
		validation.Field(&in.MaxClients, validation.Min(0)),
		validation.Field(&in.MaxCustomers, validation.Min(0)),
	)
	if err != nil {
		return validationError(err)
	}
	return nil
}

type UpdateSubscriptionInput struct {
	Status     model.SubscriptionStatus
	ProductKey string
}

func (in UpdateSubscriptionInput) Validate() error {
	if !in.Status.Valid() {
		return validationError(fmt.Errorf("unknown subscription status %q", in.Status))
	}
	return nil
}

type CreateCustomerInput struct {
	Name string
}

func (in CreateCustomerInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
	)
	if err != nil {
		return validationError(err)
	}
	return nil
}

type OrganizationService interface {
	Get(ctx context.Context, rc *RequestContext) (*model.Organization, error)
	// Create provisions a provider organization with the caller as its admin.
	// Callers that already belong to an organization get ErrAlreadyInOrg.
	Create(ctx context.Context, rc *RequestContext, in CreateOrganizationInput) (*model.Organization, *model.User, error)
	UpdateSettings(ctx context.Context, rc *RequestContext, in UpdateSettingsInput) (*model.Organization, error)
	UpdateSubscription(ctx context.Context, rc *RequestContext, in UpdateSubscriptionInput) (*model.Organization, error)
	CreateCustomer(ctx context.Context, rc *RequestContext, in CreateCustomerInput) (*model.Customer, error)
}

type organizationService struct {
	stores   StoreProvider
	txRunner TxRunner
	provider idp.Provider
	limits   billing.LimitsProvider
	events   *eventPublisher
}

func NewOrganizationService(stores StoreProvider, txRunner TxRunner, provider idp.Provider, limits billing.LimitsProvider, producer queue.Producer) OrganizationService {
	return &organizationService{
		stores:   stores,
		txRunner: txRunner,
		provider: provider,
		limits:   limits,
		events:   newEventPublisher(producer),
	}
}

func (s *organizationService) Get(ctx context.Context, rc *RequestContext) (*model.Organization, error) {
	if err := Authorize(rc, OpReadOrganization, nil); err != nil {
		return nil, err
	}
	return s.organization(ctx, s.stores, rc.OrganizationID())
}

func (s *organizationService) Create(ctx context.Context, rc *RequestContext, in CreateOrganizationInput) (*model.Organization, *model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	if rc.Literal.OrganizationID != nil {
		return nil, nil, ErrAlreadyInOrg
	}

	remote, err := s.provider.CreateOrganization(ctx, in.Name)
	if err != nil {
		return nil, nil, providerError("create organization", err)
	}
	if _, err := s.provider.CreateMembership(ctx, rc.Literal.ExternalID, remote.ID, string(model.RoleAdmin)); err != nil {
		if idp.StatusOf(err) != http.StatusConflict {
			return nil, nil, providerError("create admin membership", err)
		}
		slog.WarnContext(ctx, "admin membership already exists", "external_organization_id", remote.ID)
	}

	org := &model.Organization{
		ID:                 id.New(),
		ExternalID:         remote.ID,
		Name:               in.Name,
		SubscriptionStatus: model.SubscriptionInactive,
	}
	var user *model.User
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Organizations().Create(ctx, org); err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}
		var err error
		user, err = upsertUser(ctx, stores, UpsertUserParams{
			ExternalID:     rc.Literal.ExternalID,
			Email:          rc.Literal.Email,
			OrganizationID: &org.ID,
			Role:           model.RolePtr(model.RoleAdmin),
		})
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to store organization", "error", err, "external_organization_id", remote.ID)
		return nil, nil, err
	}

	slog.InfoContext(ctx, "organization created", "organization_id", org.ID, "user_id", user.ID)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventOrganizationCreated,
		OrganizationID: org.ID,
		ActorUserID:    user.ID,
	})
	return org, user, nil
}

func (s *organizationService) UpdateSettings(ctx context.Context, rc *RequestContext, in UpdateSettingsInput) (*model.Organization, error) {
	if err := Authorize(rc, OpUpdateOrgSettings, nil); err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	current, err := s.organization(ctx, s.stores, rc.OrganizationID())
	if err != nil {
		return nil, err
	}
	if in.Name != nil && *in.Name != current.Name {
		if _, err := s.provider.UpdateOrganization(ctx, current.ExternalID, *in.Name); err != nil {
			return nil, providerError("update organization", err)
		}
	}

	var org *model.Organization
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		org, err = s.organization(ctx, stores, rc.OrganizationID())
		if err != nil {
			return err
		}
		if in.Name != nil {
			org.Name = *in.Name
		}
		if in.MaxStaff != nil {
			org.MaxStaff = *in.MaxStaff
		}
		if in.MaxClients != nil {
			org.MaxClients = *in.MaxClients
		}
		if in.MaxCustomers != nil {
			org.MaxCustomers = *in.MaxCustomers
		}
		return stores.Organizations().Update(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "organization settings updated", "organization_id", org.ID)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventOrganizationUpdated,
		OrganizationID: org.ID,
		ActorUserID:    rc.Literal.ID,
	})
	return org, nil
}

func (s *organizationService) UpdateSubscription(ctx context.Context, rc *RequestContext, in UpdateSubscriptionInput) (*model.Organization, error) {
	if err := Authorize(rc, OpUpdateBilling, nil); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var (
		org      *model.Organization
		previous model.SubscriptionStatus
	)
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		org, err = s.organization(ctx, stores, rc.OrganizationID())
		if err != nil {
			return err
		}
		previous = org.SubscriptionStatus
		org.SubscriptionStatus = in.Status
		org.ProductKey = in.ProductKey
		return stores.Organizations().Update(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "subscription updated",
		"organization_id", org.ID,
		"from", previous,
		"to", org.SubscriptionStatus,
		"product_key", org.ProductKey,
	)
	s.events.publish(ctx, queue.IdentityEvent{
		Type:           queue.EventSubscriptionUpdated,
		OrganizationID: org.ID,
		ActorUserID:    rc.Literal.ID,
	})
	return org, nil
}

func (s *organizationService) CreateCustomer(ctx context.Context, rc *RequestContext, in CreateCustomerInput) (*model.Customer, error) {
	if err := Authorize(rc, OpWriteRecords, nil); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	customer := &model.Customer{
		ID:             id.New(),
		OrganizationID: rc.OrganizationID(),
		Name:           in.Name,
	}
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		org, err := s.organization(ctx, stores, rc.OrganizationID())
		if err != nil {
			return err
		}
		if err := checkCustomerLimit(ctx, stores, s.limits, org); err != nil {
			return err
		}
		return stores.Customers().Create(ctx, customer)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "customer created", "customer_id", customer.ID, "organization_id", customer.OrganizationID)
	return customer, nil
}

func (s *organizationService) organization(ctx context.Context, stores StoreProvider, orgID int64) (*model.Organization, error) {
	org, err := stores.Organizations().GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	return org, nil
}
