package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/internal/queue"
)

// StreamClient is the part of *redis.Client the reclaimer uses.
type StreamClient interface {
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd
}

type ReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries dead-letters an entry Redis has handed out this many
	// times without an ACK. Zero means no limit.
	MaxDeliveries int64
}

// Reclaimer claims identity events left pending by a tailer that stopped
// between XREADGROUP and XACK, and feeds them back through the processor.
type Reclaimer struct {
	client    StreamClient
	cfg       ReclaimerConfig
	consumer  Consumer
	processor queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(client StreamClient, cfg ReclaimerConfig, consumer Consumer, processor queue.MessageProcessor) *Reclaimer {
	return &Reclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "identity.audit.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"max_deliveries", r.cfg.MaxDeliveries,
		"stream", r.cfg.Stream,
		"group", r.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if _, err := r.reclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// reclaimOnce handles one page of stale entries and reports how many it claimed.
func (r *Reclaimer) reclaimOnce(ctx context.Context) (int, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "found stale pending events", "count", len(pending))

	claimed := 0
	for _, p := range pending {
		ok, err := r.reclaimMessage(ctx, p)
		if err != nil {
			slog.ErrorContext(ctx, "failed to reclaim event",
				"error", err,
				"message_id", p.ID,
				"original_consumer", p.Consumer,
				"idle_time", p.Idle)
			continue
		}
		if ok {
			claimed++
		}
	}

	return claimed, nil
}

func (r *Reclaimer) reclaimMessage(ctx context.Context, pending redis.XPendingExt) (bool, error) {
	messages, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: []string{pending.ID},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("xclaim: %w", err)
	}

	if len(messages) == 0 {
		// Another reclaimer got there first.
		return false, nil
	}

	raw := messages[0]
	parsed, err := queue.ParseMessage(raw)
	if err != nil {
		slog.ErrorContext(ctx, "dropping unparseable identity event",
			"error", err,
			"message_id", raw.ID)
		_ = r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw})
		return true, nil
	}

	ctx = withEventFields(ctx, parsed)

	if r.cfg.MaxDeliveries > 0 && pending.RetryCount >= r.cfg.MaxDeliveries {
		reason := fmt.Sprintf("delivered %d times without ack", pending.RetryCount)
		if err := r.consumer.SendDLQ(ctx, parsed, reason); err != nil {
			return true, fmt.Errorf("dead-lettering event: %w", err)
		}
		return true, nil
	}

	slog.InfoContext(ctx, "replaying stale identity event",
		"message_id", parsed.ID,
		"original_consumer", pending.Consumer,
		"idle_time", pending.Idle,
		"deliveries", pending.RetryCount)

	if err := r.processor(ctx, parsed); err != nil {
		return true, fmt.Errorf("processing reclaimed event: %w", err)
	}
	return true, nil
}
