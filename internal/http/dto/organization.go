package dto

import (
	"time"

	"clientdesk.app/identity/internal/model"
)

type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type UpdateOrganizationRequest struct {
	Name         *string `json:"name,omitempty"`
	MaxStaff     *int    `json:"max_staff,omitempty"`
	MaxClients   *int    `json:"max_clients,omitempty"`
	MaxCustomers *int    `json:"max_customers,omitempty"`
}

type UpdateSubscriptionRequest struct {
	Status     model.SubscriptionStatus `json:"status" binding:"required"`
	ProductKey string                   `json:"product_key"`
}

type OrganizationResponse struct {
	ID                 int64                    `json:"id,string"`
	ExternalID         string                   `json:"external_id"`
	Name               string                   `json:"name"`
	SubscriptionStatus model.SubscriptionStatus `json:"subscription_status"`
	ProductKey         string                   `json:"product_key,omitempty"`
	MaxStaff           int                      `json:"max_staff"`
	MaxClients         int                      `json:"max_clients"`
	MaxCustomers       int                      `json:"max_customers"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

func ToOrganizationResponse(org *model.Organization) *OrganizationResponse {
	return &OrganizationResponse{
		ID:                 org.ID,
		ExternalID:         org.ExternalID,
		Name:               org.Name,
		SubscriptionStatus: org.SubscriptionStatus,
		ProductKey:         org.ProductKey,
		MaxStaff:           org.MaxStaff,
		MaxClients:         org.MaxClients,
		MaxCustomers:       org.MaxCustomers,
		CreatedAt:          org.CreatedAt,
		UpdatedAt:          org.UpdatedAt,
	}
}

type CreateOrganizationResponse struct {
	Organization *OrganizationResponse `json:"organization"`
	User         *UserResponse         `json:"user"`
}

type CreateCustomerRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type CustomerResponse struct {
	ID             int64     `json:"id,string"`
	OrganizationID int64     `json:"organization_id,string"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

func ToCustomerResponse(c *model.Customer) *CustomerResponse {
	return &CustomerResponse{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		Name:           c.Name,
		CreatedAt:      c.CreatedAt,
	}
}
