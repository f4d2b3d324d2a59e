package service

import (
	"context"
	"log/slog"
	"time"

	"clientdesk.app/identity/internal/queue"
	"go.opentelemetry.io/otel/trace"
)

// eventPublisher emits audit events after a mutation has committed. Publish
// failures are logged and never fail the operation.
type eventPublisher struct {
	producer queue.Producer
}

func newEventPublisher(producer queue.Producer) *eventPublisher {
	return &eventPublisher{producer: producer}
}

func (p *eventPublisher) publish(ctx context.Context, event queue.IdentityEvent) {
	if p == nil || p.producer == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID := sc.TraceID().String()
		event.TraceID = &traceID
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish identity event", "error", err, "event_type", event.Type)
	}
}
