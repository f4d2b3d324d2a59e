// Package billing maps subscription state to plan usage limits.
package billing

import (
	"clientdesk.app/identity/core/config"
	"clientdesk.app/identity/internal/model"
)

type Limits struct {
	MaxStaff     int `json:"max_staff"`
	MaxClients   int `json:"max_clients"`
	MaxCustomers int `json:"max_customers"`
}

// LimitsProvider resolves the usage caps granted by a subscription.
type LimitsProvider interface {
	GetLimitsForSubscription(status model.SubscriptionStatus, productKey string) Limits
}

// PlanLimits grants configured plan caps to subscriptions in good standing.
// Products listed in Products override the default caps.
type PlanLimits struct {
	Default  Limits
	Products map[string]Limits
}

func NewPlanLimits(cfg config.PlanConfig) *PlanLimits {
	return &PlanLimits{
		Default: Limits{
			MaxStaff:     cfg.MaxStaff,
			MaxClients:   cfg.MaxClients,
			MaxCustomers: cfg.MaxCustomers,
		},
	}
}

func (p *PlanLimits) GetLimitsForSubscription(status model.SubscriptionStatus, productKey string) Limits {
	if !Entitled(status) {
		return Limits{}
	}
	if l, ok := p.Products[productKey]; ok {
		return l
	}
	return p.Default
}

// Entitled reports whether a subscription in status grants plan usage.
func Entitled(status model.SubscriptionStatus) bool {
	switch status {
	case model.SubscriptionActive, model.SubscriptionTrialing, model.SubscriptionPastDue:
		return true
	}
	return false
}
