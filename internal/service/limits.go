package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clientdesk.app/identity/internal/billing"
	"clientdesk.app/identity/internal/model"
)

// checkSeatLimit rejects a new seat for role when active members plus
// pending invitations already reach the plan cap. replacing is the number of
// pending invitations the new one supersedes.
func checkSeatLimit(ctx context.Context, stores StoreProvider, limits billing.LimitsProvider, org *model.Organization, role model.Role, now time.Time, replacing int) error {
	plan := effectiveLimits(limits, org)

	var (
		max  int
		used int
	)
	switch role {
	case model.RoleClient:
		max = plan.MaxClients
		n, err := stores.Users().CountActiveByOrgAndRole(ctx, org.ID, model.RoleClient)
		if err != nil {
			return fmt.Errorf("counting clients: %w", err)
		}
		used = n
	default:
		// Admins occupy staff seats.
		max = plan.MaxStaff
		for _, r := range []model.Role{model.RoleStaff, model.RoleAdmin} {
			n, err := stores.Users().CountActiveByOrgAndRole(ctx, org.ID, r)
			if err != nil {
				return fmt.Errorf("counting %s members: %w", r, err)
			}
			used += n
		}
	}

	pending, err := stores.Invitations().CountPendingByOrgAndRole(ctx, org.ID, role, now)
	if err != nil {
		return fmt.Errorf("counting pending invitations: %w", err)
	}
	used += pending - replacing

	if used >= max {
		slog.InfoContext(ctx, "plan limit reached",
			"organization_id", org.ID,
			"role", role,
			"used", used,
			"max", max,
			"subscription_status", org.SubscriptionStatus,
		)
		return fmt.Errorf("%w: %d of %d %s seats in use", ErrPlanLimitReached, used, max, role)
	}
	return nil
}

// checkCustomerLimit rejects a new customer when the plan cap is reached.
func checkCustomerLimit(ctx context.Context, stores StoreProvider, limits billing.LimitsProvider, org *model.Organization) error {
	plan := effectiveLimits(limits, org)
	n, err := stores.Customers().CountByOrganization(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("counting customers: %w", err)
	}
	if n >= plan.MaxCustomers {
		return fmt.Errorf("%w: %d of %d customers in use", ErrPlanLimitReached, n, plan.MaxCustomers)
	}
	return nil
}

// effectiveLimits is the plan grant, tightened by any positive caps the
// organization set for itself.
func effectiveLimits(limits billing.LimitsProvider, org *model.Organization) billing.Limits {
	plan := limits.GetLimitsForSubscription(org.SubscriptionStatus, org.ProductKey)
	plan.MaxStaff = tighten(plan.MaxStaff, org.MaxStaff)
	plan.MaxClients = tighten(plan.MaxClients, org.MaxClients)
	plan.MaxCustomers = tighten(plan.MaxCustomers, org.MaxCustomers)
	return plan
}

func tighten(plan, own int) int {
	if own > 0 && own < plan {
		return own
	}
	return plan
}
