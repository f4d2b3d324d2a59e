package model

import "time"

// Invitation is a pending invitation mirrored from the identity provider.
// Rows are deleted once consumed, revoked, replaced or found stale.
type Invitation struct {
	ID             int64     `json:"id"`
	ExternalID     string    `json:"external_id"`
	Email          string    `json:"email"`
	OrganizationID int64     `json:"organization_id"`
	Role           Role      `json:"role"`
	CustomerID     *int64    `json:"customer_id,omitempty"`
	InviterUserID  *int64    `json:"inviter_user_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
