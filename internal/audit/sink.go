package audit

import (
	"context"
	"log/slog"

	"clientdesk.app/identity/internal/queue"
)

// Sink stores an identity event. Record must tolerate seeing the same
// message twice.
type Sink interface {
	Record(ctx context.Context, msg queue.Message) error
}

// LogSink writes every event as a structured log line. With OTel enabled the
// lines are exported alongside request logs.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, msg queue.Message) error {
	event := msg.Event
	attrs := []any{
		"message_id", msg.ID,
		"event_type", string(event.Type),
		"occurred_at", event.OccurredAt,
	}
	for _, field := range []struct {
		key   string
		value int64
	}{
		{"organization_id", event.OrganizationID},
		{"actor_user_id", event.ActorUserID},
		{"subject_user_id", event.SubjectUserID},
		{"invitation_id", event.InvitationID},
	} {
		if field.value != 0 {
			attrs = append(attrs, field.key, field.value)
		}
	}
	if event.TraceID != nil {
		attrs = append(attrs, "trace_id", *event.TraceID)
	}

	s.logger.InfoContext(ctx, "identity event", attrs...)
	return nil
}
