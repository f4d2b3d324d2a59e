package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionUnpaid    SubscriptionStatus = "unpaid"
	SubscriptionPaused    SubscriptionStatus = "paused"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionInactive, SubscriptionActive, SubscriptionTrialing, SubscriptionCancelled,
		SubscriptionPastDue, SubscriptionUnpaid, SubscriptionPaused:
		return true
	}
	return false
}

type Organization struct {
	ID                 int64              `json:"id"`
	ExternalID         string             `json:"external_id"`
	Name               string             `json:"name"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	ProductKey         string             `json:"product_key"`
	MaxCustomers       int                `json:"max_customers"`
	MaxStaff           int                `json:"max_staff"`
	MaxClients         int                `json:"max_clients"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
