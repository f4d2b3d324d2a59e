package dto

import (
	"time"

	"clientdesk.app/identity/internal/model"
)

type UserResponse struct {
	ID             int64       `json:"id,string"`
	ExternalID     string      `json:"external_id"`
	Email          string      `json:"email"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	Name           string      `json:"name"`
	OrganizationID *int64      `json:"organization_id,string,omitempty"`
	Role           *model.Role `json:"role,omitempty"`
	CustomerID     *int64      `json:"customer_id,string,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func ToUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:             u.ID,
		ExternalID:     u.ExternalID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Name:           u.Name(),
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		CustomerID:     u.CustomerID,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func ToUserResponses(users []model.User) []*UserResponse {
	out := make([]*UserResponse, 0, len(users))
	for i := range users {
		out = append(out, ToUserResponse(&users[i]))
	}
	return out
}

// MeResponse describes both identities of the caller. EffectiveUser differs
// from User only while an admin is impersonating.
type MeResponse struct {
	User              *UserResponse `json:"user"`
	EffectiveUser     *UserResponse `json:"effective_user"`
	Impersonating     bool          `json:"impersonating"`
	TokenImpersonated bool          `json:"token_impersonated"`
}

type StartImpersonationRequest struct {
	UserID int64 `json:"user_id,string" binding:"required"`
}

type ExchangeCodeRequest struct {
	Code string `json:"code" binding:"required,max=2048"`
}

type ExchangeCodeResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

type SyncResponse struct {
	User            *UserResponse `json:"user"`
	HasOrganization bool          `json:"has_organization"`
}
