package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrValidation       = errors.New("validation failed")
	ErrExternalProvider = errors.New("identity provider error")
)

var (
	ErrUserDeactivated = fmt.Errorf("%w: account has been removed", ErrUnauthenticated)
	ErrInvalidCode     = fmt.Errorf("%w: invalid authorization code", ErrUnauthenticated)

	ErrAdminRequired        = fmt.Errorf("%w: admin role required", ErrForbidden)
	ErrReadOnly             = fmt.Errorf("%w: client accounts are read-only", ErrForbidden)
	ErrSelfAction           = fmt.Errorf("%w: cannot perform this action on yourself", ErrForbidden)
	ErrImpersonationBlocked = fmt.Errorf("%w: not allowed while impersonating", ErrForbidden)
	ErrCrossOrganization    = fmt.Errorf("%w: belongs to another organization", ErrForbidden)
	ErrNoOrganization       = fmt.Errorf("%w: user has no organization", ErrForbidden)

	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrInvitationNotFound   = fmt.Errorf("%w: invitation not found", ErrNotFound)
	ErrOrganizationNotFound = fmt.Errorf("%w: organization not found", ErrNotFound)
	ErrCustomerNotFound     = fmt.Errorf("%w: customer not found", ErrNotFound)

	ErrNoMatchingInvitation = fmt.Errorf("%w: no matching invitation", ErrConflict)
	ErrInvitationExists     = fmt.Errorf("%w: an invitation is already pending for this email", ErrConflict)
	ErrInvitationAccepted   = fmt.Errorf("%w: invitation was already accepted", ErrConflict)
	ErrAlreadyMember        = fmt.Errorf("%w: already a member of this organization", ErrConflict)
	ErrAlreadyInOrg         = fmt.Errorf("%w: user already belongs to an organization", ErrConflict)
	ErrRoleMismatch         = fmt.Errorf("%w: role was changed by someone else", ErrConflict)
	ErrPlanLimitReached     = fmt.Errorf("%w: plan limit reached", ErrConflict)

	ErrClientRoleChange = fmt.Errorf("%w: client roles cannot be changed", ErrValidation)
	ErrCustomerRequired = fmt.Errorf("%w: client role requires a customer", ErrValidation)
	ErrRoleWithoutOrg   = fmt.Errorf("%w: a role requires an organization", ErrValidation)
	ErrNotStaff         = fmt.Errorf("%w: customers can only be assigned to staff", ErrValidation)
)

func validationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func providerError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalProvider, op, err)
}
