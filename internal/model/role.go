package model

// Role is a user's role inside its organization.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleClient:
		return true
	}
	return false
}

// Invitable reports whether invitations may carry this role. Admins are only
// created through organization creation.
func (r Role) Invitable() bool {
	return r == RoleStaff || r == RoleClient
}

// RolePtr returns a pointer to r, for optional role arguments.
func RolePtr(r Role) *Role {
	return &r
}
