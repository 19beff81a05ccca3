package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisQueue(rdb, "test"), mr
}

type reminderPayload struct {
	SubmitterID    uint `json:"submitter_id"`
	ReminderNumber int  `json:"reminder_number"`
}

func TestRedisQueue_EnqueueDequeueAck(t *testing.T) {
	t.Parallel()

	q, mr := newTestQueue(t)
	ctx := context.Background()

	task, err := NewTask("send_reminder", reminderPayload{SubmitterID: 9, ReminderNumber: 2})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d == nil {
		t.Fatalf("expected a delivery")
	}
	if d.Task.ID != task.ID || d.Task.Kind != "send_reminder" {
		t.Fatalf("unexpected task %+v", d.Task)
	}

	var p reminderPayload
	if err := d.Task.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.SubmitterID != 9 || p.ReminderNumber != 2 {
		t.Fatalf("unexpected payload %+v", p)
	}

	inflight, _ := mr.List("test:processing")
	if len(inflight) != 1 {
		t.Fatalf("expected 1 in-flight entry, got %d", len(inflight))
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("expected empty queue after ack, got %+v", stats)
	}
}

func TestRedisQueue_DequeueEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)

	d, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil delivery, got %+v", d)
	}
}

func TestRedisQueue_ScheduleInAndPromote(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.ScheduleIn(ctx, RecurringTask("process_reminders"), time.Hour); err != nil {
		t.Fatalf("ScheduleIn: %v", err)
	}

	ok, err := q.IsScheduled(ctx, "process_reminders")
	if err != nil || !ok {
		t.Fatalf("IsScheduled = %v, %v; want true", ok, err)
	}
	ok, _ = q.IsScheduled(ctx, "something_else")
	if ok {
		t.Fatalf("unexpected scheduled kind")
	}

	n, err := q.Promote(ctx, time.Now())
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if n != 0 {
		t.Fatalf("task promoted before it was due")
	}

	n, err = q.Promote(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 promoted task, got %d", n)
	}

	if ok, _ = q.IsScheduled(ctx, "process_reminders"); !ok {
		t.Fatalf("a ready task still counts as queued")
	}

	d, err := q.Dequeue(ctx, time.Second)
	if err != nil || d == nil {
		t.Fatalf("Dequeue = %v, %v", d, err)
	}
	if d.Task.Kind != "process_reminders" {
		t.Fatalf("unexpected kind %q", d.Task.Kind)
	}
	if ok, _ = q.IsScheduled(ctx, "process_reminders"); !ok {
		t.Fatalf("an in-flight task still counts as queued")
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if ok, _ = q.IsScheduled(ctx, "process_reminders"); ok {
		t.Fatalf("acked task should no longer be queued")
	}
}

func TestRedisQueue_RecurringTaskIsNotDuplicated(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.ScheduleIn(ctx, RecurringTask("process_reminders"), time.Minute); err != nil {
			t.Fatalf("ScheduleIn: %v", err)
		}
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Scheduled != 1 {
		t.Fatalf("expected a single scheduled entry, got %d", stats.Scheduled)
	}
}

func TestRedisQueue_IsScheduledSeesTaskLeftInFlight(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, RecurringTask("process_reminders")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// A crashed process left the tick in flight; pad the list past one scan page.
	for i := 0; i < promoteBatch+5; i++ {
		task, _ := NewTask("send_reminder", reminderPayload{SubmitterID: uint(i), ReminderNumber: 1})
		_ = q.Enqueue(ctx, task)
	}
	if d, err := q.Dequeue(ctx, time.Second); err != nil || d == nil {
		t.Fatalf("Dequeue = %v, %v", d, err)
	}
	for i := 0; i < promoteBatch+5; i++ {
		if d, err := q.Dequeue(ctx, time.Second); err != nil || d == nil {
			t.Fatalf("Dequeue = %v, %v", d, err)
		}
	}

	ok, err := q.IsScheduled(ctx, "process_reminders")
	if err != nil || !ok {
		t.Fatalf("IsScheduled = %v, %v; want true for an in-flight tick", ok, err)
	}
}

func TestRedisQueue_PromoteMoreThanOneBatch(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	const total = promoteBatch + 20
	for i := 0; i < total; i++ {
		task, _ := NewTask("send_reminder", reminderPayload{SubmitterID: uint(i + 1), ReminderNumber: 1})
		if err := q.ScheduleIn(ctx, task, 0); err != nil {
			t.Fatalf("ScheduleIn: %v", err)
		}
	}

	n, err := q.Promote(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if n != total {
		t.Fatalf("promoted %d, want %d", n, total)
	}
}

func TestRedisQueue_RecoverRequeuesInFlight(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, _ := NewTask("send_reminder", reminderPayload{SubmitterID: 1, ReminderNumber: 1})
	_ = q.Enqueue(ctx, task)

	if d, err := q.Dequeue(ctx, time.Second); err != nil || d == nil {
		t.Fatalf("Dequeue = %v, %v", d, err)
	}
	// Simulate a crash: never acked.

	n, err := q.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}

	d, err := q.Dequeue(ctx, time.Second)
	if err != nil || d == nil {
		t.Fatalf("expected redelivery, got %v, %v", d, err)
	}
	if d.Task.ID != task.ID {
		t.Fatalf("redelivered a different task")
	}
}

func TestRedisQueue_DropsUndecodableEntries(t *testing.T) {
	t.Parallel()

	q, mr := newTestQueue(t)
	ctx := context.Background()

	if _, err := mr.Lpush("test:queue", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := q.Dequeue(ctx, time.Second); err == nil {
		t.Fatalf("expected decode error")
	}
	inflight, _ := mr.List("test:processing")
	if len(inflight) != 0 {
		t.Fatalf("bad entry should not stay in flight, got %v", inflight)
	}
}

func TestRedisQueue_ContextCanceled(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task, _ := NewTask("send_reminder", nil)
	if err := q.Enqueue(ctx, task); err == nil {
		t.Fatalf("expected error due to canceled context")
	}
}
