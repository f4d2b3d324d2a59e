package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/internal/queue"
)

// Consumer is the slice of queue.RedisConsumer the tailer drives.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

type Config struct {
	MaxAttempts int
}

// Tailer reads identity events from the stream and records each one in a Sink.
type Tailer struct {
	consumer Consumer
	sink     Sink
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewTailer(consumer Consumer, sink Sink, cfg Config) *Tailer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Tailer{
		consumer:  consumer,
		sink:      sink,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (t *Tailer) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "identity.audit.tailer",
	})

	defer close(t.stoppedCh)

	slog.InfoContext(ctx, "audit tailer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopCh:
			slog.InfoContext(ctx, "audit tailer stopping")
			return nil
		default:
			if err := t.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (t *Tailer) Stop() {
	close(t.stopCh)
	<-t.stoppedCh
}

func (t *Tailer) processOneBatch(ctx context.Context) error {
	messages, err := t.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		msgCtx := withEventFields(ctx, msg)
		if err := t.processMessageSafe(msgCtx, msg); err != nil {
			slog.ErrorContext(msgCtx, "message processing failed",
				"error", err,
				"message_id", msg.ID)
			t.handleFailedMessage(msgCtx, msg, err)
		}
	}

	return nil
}

func (t *Tailer) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.ProcessMessage(ctx, msg)
}

// ProcessMessage records msg and acknowledges it. The reclaimer reuses it for
// messages abandoned by a crashed consumer.
func (t *Tailer) ProcessMessage(ctx context.Context, msg queue.Message) error {
	span := logger.StartSpan(ctx, "identity.audit.record")
	defer span.End()
	ctx = span.Context()
	span.SetIdentity(msg.Event.OrganizationID, msg.Event.SubjectUserID)

	if err := t.sink.Record(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("recording event: %w", err)
	}

	if err := t.consumer.Ack(ctx, msg); err != nil {
		// The entry stays pending and is reclaimed later; sinks see it twice.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}
	return nil
}

func (t *Tailer) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= t.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"attempts", msg.Attempt)
		if dlqErr := t.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"attempt", msg.Attempt)
	if requeueErr := t.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

func withEventFields(ctx context.Context, msg queue.Message) context.Context {
	eventType := string(msg.Event.Type)
	fields := logger.LogFields{EventType: &eventType}
	if msg.Event.OrganizationID != 0 {
		orgID := msg.Event.OrganizationID
		fields.OrganizationID = &orgID
	}
	if msg.Event.ActorUserID != 0 {
		actorID := msg.Event.ActorUserID
		fields.UserID = &actorID
	}
	return logger.WithLogFields(ctx, fields)
}
