package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventUserSynced           EventType = "user.synced"
	EventInvitationSent       EventType = "invitation.sent"
	EventInvitationAccepted   EventType = "invitation.accepted"
	EventInvitationRevoked    EventType = "invitation.revoked"
	EventMemberRemoved        EventType = "member.removed"
	EventMemberRoleChanged    EventType = "member.role_changed"
	EventImpersonationStarted EventType = "impersonation.started"
	EventImpersonationStopped EventType = "impersonation.stopped"
	EventOrganizationCreated  EventType = "organization.created"
	EventOrganizationUpdated  EventType = "organization.updated"
	EventSubscriptionUpdated  EventType = "organization.subscription_updated"
	EventCustomerAssigned     EventType = "member.customer_assigned"
)

// IdentityEvent records a committed identity mutation.
type IdentityEvent struct {
	Type           EventType
	OrganizationID int64
	ActorUserID    int64
	SubjectUserID  int64
	InvitationID   int64
	TraceID        *string
	OccurredAt     time.Time
}

type Producer interface {
	Publish(ctx context.Context, event IdentityEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Publish(ctx context.Context, event IdentityEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: Fields(event),
	}).Err(); err != nil {
		return fmt.Errorf("publish identity event: %w", err)
	}

	p.logger.DebugContext(ctx, "published identity event",
		"event_type", event.Type,
		"organization_id", event.OrganizationID,
		"subject_user_id", event.SubjectUserID,
	)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

// Fields flattens event into stream entry values. Zero ids are omitted.
func Fields(event IdentityEvent) map[string]any {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	fields := map[string]any{
		"event_type":  string(event.Type),
		"occurred_at": occurred.UTC().Format(time.RFC3339Nano),
	}
	for key, v := range map[string]int64{
		"organization_id": event.OrganizationID,
		"actor_user_id":   event.ActorUserID,
		"subject_user_id": event.SubjectUserID,
		"invitation_id":   event.InvitationID,
	} {
		if v != 0 {
			fields[key] = strconv.FormatInt(v, 10)
		}
	}
	if event.TraceID != nil && *event.TraceID != "" {
		fields["trace_id"] = *event.TraceID
	}
	return fields
}

type noopProducer struct{}

// NewNoopProducer returns a Producer that drops every event. Used when no
// Redis URL is configured.
func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) Publish(context.Context, IdentityEvent) error { return nil }
func (noopProducer) Close() error                             { return nil }
