package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/internal/queue"
)

func message(id string, attempt int) queue.Message {
	return queue.Message{
		ID:      id,
		Attempt: attempt,
		Event: queue.IdentityEvent{
			Type:           queue.EventMemberRemoved,
			OrganizationID: 100,
			ActorUserID:    1,
			SubjectUserID:  2,
			OccurredAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

var _ = Describe("Tailer", func() {
	var (
		ctx      context.Context
		consumer *fakeConsumer
		sink     *fakeSink
		tailer   *Tailer
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &fakeConsumer{}
		sink = &fakeSink{}
		tailer = NewTailer(consumer, sink, Config{MaxAttempts: 3})
	})

	It("should record and acknowledge each message", func() {
		consumer.batches = [][]queue.Message{{message("1-0", 1), message("2-0", 1)}}

		Expect(tailer.processOneBatch(ctx)).To(Succeed())

		Expect(sink.recorded).To(HaveLen(2))
		Expect(consumer.acked).To(Equal([]string{"1-0", "2-0"}))
	})

	It("should requeue a failed message below the attempt limit", func() {
		sink.recordFn = func(context.Context, queue.Message) error { return errSinkDown }
		consumer.batches = [][]queue.Message{{message("1-0", 2)}}

		Expect(tailer.processOneBatch(ctx)).To(Succeed())

		Expect(consumer.acked).To(BeEmpty())
		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(ContainSubstring("sink down"))
	})

	It("should dead-letter a message on its last attempt", func() {
		sink.recordFn = func(context.Context, queue.Message) error { return errSinkDown }
		consumer.batches = [][]queue.Message{{message("1-0", 3)}}

		Expect(tailer.processOneBatch(ctx)).To(Succeed())

		Expect(consumer.requeued).To(BeEmpty())
		Expect(consumer.dead).To(Equal([]string{"1-0"}))
	})

	It("should turn a panicking sink into a retry", func() {
		sink.recordFn = func(context.Context, queue.Message) error { panic("boom") }
		consumer.batches = [][]queue.Message{{message("1-0", 1)}}

		Expect(tailer.processOneBatch(ctx)).To(Succeed())

		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(Equal("panic: boom"))
	})

	It("should not retry when only the ACK fails", func() {
		consumer.ackErr = errors.New("redis gone")

		Expect(tailer.ProcessMessage(ctx, message("1-0", 1))).To(Succeed())
		Expect(sink.recorded).To(HaveLen(1))
		Expect(consumer.requeued).To(BeEmpty())
	})

	It("should report read errors", func() {
		consumer.readErr = errors.New("redis gone")

		Expect(tailer.processOneBatch(ctx)).To(MatchError(ContainSubstring("reading from stream")))
	})

	It("should stop when asked", func() {
		done := make(chan error, 1)
		go func() { done <- tailer.Run(ctx) }()

		tailer.Stop()

		Eventually(done).Should(Receive(BeNil()))
	})
})

var _ = Describe("LogSink", func() {
	It("should log the event with its ids", func() {
		var buf bytes.Buffer
		sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
		trace := "trace-1"
		msg := message("1-0", 1)
		msg.Event.TraceID = &trace

		Expect(sink.Record(context.Background(), msg)).To(Succeed())

		line := buf.String()
		Expect(line).To(ContainSubstring(`"event_type":"member.removed"`))
		Expect(line).To(ContainSubstring(`"subject_user_id":2`))
		Expect(line).To(ContainSubstring(`"trace_id":"trace-1"`))
		Expect(line).NotTo(ContainSubstring("invitation_id"))
	})
})
