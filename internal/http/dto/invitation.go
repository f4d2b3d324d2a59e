package dto

import (
	"time"

	"clientdesk.app/identity/internal/model"
)

type SendInvitationRequest struct {
	Email      string     `json:"email" binding:"required"`
	Role       model.Role `json:"role" binding:"required"`
	CustomerID *int64     `json:"customer_id,string,omitempty"`
}

type InvitationResponse struct {
	ID         int64      `json:"id,string"`
	Email      string     `json:"email"`
	Role       model.Role `json:"role"`
	CustomerID *int64     `json:"customer_id,string,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func ToInvitationResponse(inv *model.Invitation) *InvitationResponse {
	return &InvitationResponse{
		ID:         inv.ID,
		Email:      inv.Email,
		Role:       inv.Role,
		CustomerID: inv.CustomerID,
		ExpiresAt:  inv.ExpiresAt,
		CreatedAt:  inv.CreatedAt,
	}
}

type ListInvitationsResponse struct {
	Invitations []*InvitationResponse `json:"invitations"`
}
