package audit

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"clientdesk.app/identity/internal/queue"
)

type fakeStream struct {
	pending    []redis.XPendingExt
	pendingErr error
	claimed    map[string]redis.XMessage
	claimArgs  []*redis.XClaimArgs
}

func (s *fakeStream) XPendingExt(ctx context.Context, _ *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	cmd := redis.NewXPendingExtCmd(ctx)
	cmd.SetVal(s.pending)
	cmd.SetErr(s.pendingErr)
	return cmd
}

func (s *fakeStream) XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd {
	s.claimArgs = append(s.claimArgs, a)
	var out []redis.XMessage
	for _, id := range a.Messages {
		if msg, ok := s.claimed[id]; ok {
			out = append(out, msg)
		}
	}
	cmd := redis.NewXMessageSliceCmd(ctx)
	cmd.SetVal(out)
	return cmd
}

func streamEntry(id string) redis.XMessage {
	return redis.XMessage{ID: id, Values: queue.Fields(message(id, 1).Event)}
}

var _ = Describe("Reclaimer", func() {
	var (
		ctx       context.Context
		stream    *fakeStream
		consumer  *fakeConsumer
		processed []queue.Message
		processFn queue.MessageProcessor
		reclaimer *Reclaimer
	)

	BeforeEach(func() {
		ctx = context.Background()
		stream = &fakeStream{claimed: map[string]redis.XMessage{}}
		consumer = &fakeConsumer{}
		processed = nil
		processFn = func(_ context.Context, msg queue.Message) error {
			processed = append(processed, msg)
			return nil
		}
	})

	JustBeforeEach(func() {
		reclaimer = NewReclaimer(stream, ReclaimerConfig{
			Stream:        "identity_events",
			Group:         "identity_audit",
			Consumer:      "audit-1-reclaimer",
			MinIdle:       time.Minute,
			BatchSize:     10,
			MaxDeliveries: 5,
		}, consumer, func(ctx context.Context, msg queue.Message) error {
			return processFn(ctx, msg)
		})
	})

	It("should replay stale events through the processor", func() {
		stream.pending = []redis.XPendingExt{{ID: "1-0", Consumer: "audit-0", RetryCount: 1}}
		stream.claimed["1-0"] = streamEntry("1-0")

		claimed, err := reclaimer.reclaimOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(Equal(1))
		Expect(processed).To(HaveLen(1))
		Expect(processed[0].Event.Type).To(Equal(queue.EventMemberRemoved))
		Expect(stream.claimArgs[0].Consumer).To(Equal("audit-1-reclaimer"))
	})

	It("should skip events another consumer claimed first", func() {
		stream.pending = []redis.XPendingExt{{ID: "1-0", RetryCount: 1}}

		claimed, err := reclaimer.reclaimOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(BeZero())
		Expect(processed).To(BeEmpty())
	})

	It("should dead-letter events delivered too often", func() {
		stream.pending = []redis.XPendingExt{{ID: "1-0", RetryCount: 5}}
		stream.claimed["1-0"] = streamEntry("1-0")

		_, err := reclaimer.reclaimOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(processed).To(BeEmpty())
		Expect(consumer.dead).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(ContainSubstring("delivered 5 times"))
	})

	It("should acknowledge entries it cannot parse", func() {
		stream.pending = []redis.XPendingExt{{ID: "1-0", RetryCount: 1}}
		stream.claimed["1-0"] = redis.XMessage{ID: "1-0", Values: map[string]any{"junk": "x"}}

		_, err := reclaimer.reclaimOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(consumer.acked).To(Equal([]string{"1-0"}))
		Expect(processed).To(BeEmpty())
	})

	It("should keep going when one event fails", func() {
		processFn = func(_ context.Context, msg queue.Message) error {
			if msg.ID == "1-0" {
				return errors.New("sink down")
			}
			processed = append(processed, msg)
			return nil
		}
		stream.pending = []redis.XPendingExt{{ID: "1-0", RetryCount: 1}, {ID: "2-0", RetryCount: 1}}
		stream.claimed["1-0"] = streamEntry("1-0")
		stream.claimed["2-0"] = streamEntry("2-0")

		claimed, err := reclaimer.reclaimOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(Equal(1))
		Expect(processed).To(HaveLen(1))
	})

	It("should surface XPENDING failures", func() {
		stream.pendingErr = errors.New("redis gone")

		_, err := reclaimer.reclaimOnce(ctx)
		Expect(err).To(MatchError(ContainSubstring("xpending")))
	})
})
