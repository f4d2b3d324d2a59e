package service

import (
	"time"

	"clientdesk.app/identity/internal/billing"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/queue"
)

type Services struct {
	stores     StoreProvider
	txRunner   TxRunner
	provider   idp.Provider
	limits     billing.LimitsProvider
	producer   queue.Producer
	resolver   *InvitationResolver
	now        func() time.Time
	expiryDays int
}

type ServicesConfig struct {
	Stores     StoreProvider
	TxRunner   TxRunner
	Provider   idp.Provider
	Limits     billing.LimitsProvider
	Producer   queue.Producer
	Now        func() time.Time
	ExpiryDays int
}

func NewServices(cfg ServicesConfig) *Services {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	producer := cfg.Producer
	if producer == nil {
		producer = queue.NewNoopProducer()
	}
	return &Services{
		stores:     cfg.Stores,
		txRunner:   cfg.TxRunner,
		provider:   cfg.Provider,
		limits:     cfg.Limits,
		producer:   producer,
		resolver:   NewInvitationResolver(cfg.Provider, now),
		now:        now,
		expiryDays: cfg.ExpiryDays,
	}
}

func (s *Services) Access() AccessService {
	return NewAccessService(s.stores, s.txRunner, s.producer)
}

func (s *Services) Sync() SyncService {
	return NewSyncService(s.txRunner, s.now)
}

func (s *Services) Login() LoginService {
	return NewLoginService(s.stores, s.txRunner, s.resolver, s.provider, s.producer)
}

func (s *Services) Webhook() WebhookService {
	return NewWebhookService(s.txRunner, s.resolver, s.provider, s.producer)
}

func (s *Services) Invitations() InvitationService {
	return NewInvitationService(s.stores, s.txRunner, s.provider, s.limits, s.producer, s.now, s.expiryDays)
}

func (s *Services) Members() MemberService {
	return NewMemberService(s.stores, s.txRunner, s.provider, s.producer, s.now)
}

func (s *Services) Organizations() OrganizationService {
	return NewOrganizationService(s.stores, s.txRunner, s.provider, s.limits, s.producer)
}
