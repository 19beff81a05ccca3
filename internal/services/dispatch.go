package services

import (
	"context"
	"fmt"

	"docremind/internal/queue"
)

// Task kinds
const (
	TaskProcessReminders = "process_submitter_reminders"
	TaskSendReminder     = "send_submitter_reminder_email"
)

// ReminderPayload identifies one reminder to deliver.
type ReminderPayload struct {
	SubmitterID    uint `json:"submitter_id"`
	ReminderNumber int  `json:"reminder_number"`
}

// ReminderDispatcher hands a reminder from evaluation to delivery.
type ReminderDispatcher interface {
	DispatchReminder(ctx context.Context, submitterID uint, number int) error
}

// QueueDispatcher enqueues fire-and-forget delivery tasks.
type QueueDispatcher struct {
	queue TaskQueue
}

func NewQueueDispatcher(q TaskQueue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) DispatchReminder(ctx context.Context, submitterID uint, number int) error {
	task, err := queue.NewTask(TaskSendReminder, ReminderPayload{
		SubmitterID:    submitterID,
		ReminderNumber: number,
	})
	if err != nil {
		return err
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("dispatch reminder %d for submitter %d: %w", number, submitterID, err)
	}
	return nil
}
