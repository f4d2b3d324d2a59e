package model

import "time"

type User struct {
	ID                  int64      `json:"id"`
	ExternalID          string     `json:"external_id"`
	OrganizationID      *int64     `json:"organization_id,omitempty"`
	Role                *Role      `json:"role,omitempty"`
	CustomerID          *int64     `json:"customer_id,omitempty"`
	ImpersonatingUserID *int64     `json:"impersonating_user_id,omitempty"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// HasRole reports whether the user holds exactly role r.
func (u *User) HasRole(r Role) bool {
	return u.Role != nil && *u.Role == r
}

// InOrganization reports whether the user belongs to orgID.
func (u *User) InOrganization(orgID int64) bool {
	return u.OrganizationID != nil && *u.OrganizationID == orgID
}

func (u *User) Name() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Email
}
