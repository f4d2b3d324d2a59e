// Package idp wraps the external identity provider API.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// MembershipStatus is the provider-side state of an organization membership.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
	MembershipPending  MembershipStatus = "pending"
)

// InvitationAccepted is the provider state of an invitation the invitee took up.
const InvitationAccepted = "accepted"

type Invitation struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	State          string    `json:"state"`
	OrganizationID string    `json:"organization_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type Membership struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	OrganizationID string           `json:"organization_id"`
	Status         MembershipStatus `json:"status"`
	Role           RoleLabel        `json:"role"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the result of a completed provider login.
type Session struct {
	User           User
	OrganizationID string
	AccessToken    string
	RefreshToken   string
	Impersonator   string
}

type SendInvitationParams struct {
	Email          string
	OrganizationID string
	InviterUserID  string
	RoleSlug       string
	ExpiresInDays  int
}

// Provider is the subset of the identity provider API used by the identity core.
// All methods return *Error for provider-side HTTP failures.
type Provider interface {
	GetInvitation(ctx context.Context, invitationID string) (*Invitation, error)
	SendInvitation(ctx context.Context, params SendInvitationParams) (*Invitation, error)
	RevokeInvitation(ctx context.Context, invitationID string) error
	ListMemberships(ctx context.Context, userID string, statuses ...MembershipStatus) ([]Membership, error)
	CreateMembership(ctx context.Context, userID, organizationID, roleSlug string) (*Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error
	GetUser(ctx context.Context, userID string) (*User, error)
	CreateOrganization(ctx context.Context, name string) (*Organization, error)
	UpdateOrganization(ctx context.Context, organizationID, name string) (*Organization, error)
	AuthenticateWithCode(ctx context.Context, code string) (*Session, error)
}

// Error is a failed provider call.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("idp %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("idp %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Terminal reports whether the provider rejected the call for good: the
// resource is already gone, already in the requested state, or unprocessable.
// Anything else (network failures, 5xx, rate limits) may succeed on retry.
func (e *Error) Terminal() bool {
	switch e.Status {
	case http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// IsTerminal reports whether err carries a terminal provider error.
func IsTerminal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Terminal()
}

// StatusOf returns the provider HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
