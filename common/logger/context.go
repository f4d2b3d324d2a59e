package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Handlers and services enrich the context once; every slog.*Context call below them
// picks the fields up without repeating them.
type LogFields struct {
	OrganizationID *int64  // Local organization ID
	UserID         *int64  // Literal (authenticated) local user ID
	EffectiveID    *int64  // Effective user ID when impersonating
	ExternalUserID *string // Identity provider user ID
	InvitationID   *string // Identity provider invitation ID
	EventType      *string // Webhook event type, e.g. "invitation.accepted"
	RequestID      *string // Per-request correlation id
	Component      string  // Component name, e.g. "identity.sync"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.OrganizationID != nil {
		result.OrganizationID = next.OrganizationID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.EffectiveID != nil {
		result.EffectiveID = next.EffectiveID
	}
	if next.ExternalUserID != nil {
		result.ExternalUserID = next.ExternalUserID
	}
	if next.InvitationID != nil {
		result.InvitationID = next.InvitationID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.RequestID != nil {
		result.RequestID = next.RequestID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
