package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventSendReminderEmail marks a reminder that was delivered successfully
const EventSendReminderEmail = "send_reminder_email"

// SubmissionEvent is an immutable ledger entry. Reminder events carry their
// escalation number in ReminderNumber (indexed) and in Data.
type SubmissionEvent struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SubmissionID   uint           `gorm:"not null;index" json:"submission_id"`
	SubmitterID    uint           `gorm:"not null;uniqueIndex:idx_submission_event_reminder,priority:1" json:"submitter_id"`
	EventType      string         `gorm:"size:50;not null;uniqueIndex:idx_submission_event_reminder,priority:2" json:"event_type"`
	ReminderNumber *int           `gorm:"uniqueIndex:idx_submission_event_reminder,priority:3" json:"reminder_number,omitempty"`
	Data           datatypes.JSON `gorm:"type:jsonb" json:"data"`
	EventTimestamp time.Time      `gorm:"not null;index" json:"event_timestamp"`
}

// BeforeCreate hook for submission events
func (e *SubmissionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventTimestamp.IsZero() {
		e.EventTimestamp = time.Now()
	}
	return nil
}

// TableName specifies the table name for the SubmissionEvent model
func (SubmissionEvent) TableName() string {
	return "submission_event"
}
