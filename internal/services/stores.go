package services

import (
	"context"
	"errors"
	"time"

	"docremind/internal/models"
	"docremind/internal/queue"
)

var (
	// ErrSubmitterNotFound is returned by SubmitterStore.FindSubmitter
	ErrSubmitterNotFound = errors.New("submitter not found")
	// ErrAccountNotFound is returned when an account id does not resolve
	ErrAccountNotFound = errors.New("account not found")
	// ErrTemplateNotFound is returned when an account has no usable template
	ErrTemplateNotFound = errors.New("no active template found")
)

// AccountStore reads accounts and their scoped configuration.
type AccountStore interface {
	EachActiveAccount(ctx context.Context, batchSize int, fn func(models.Account) error) error
	FindAccount(ctx context.Context, id uint) (*models.Account, error)
	// ReminderSettings returns nil, nil when the account has no reminder configuration.
	ReminderSettings(ctx context.Context, accountID uint) (*models.ReminderSettings, error)
	// SMTPSettings returns nil, nil when the account has no SMTP configuration.
	SMTPSettings(ctx context.Context, accountID uint) (*models.SMTPSettings, error)
}

// SubmitterStore reads submitters and manages disposable test submissions.
type SubmitterStore interface {
	// EachPendingSubmitter visits, in pages of batchSize, the submitters of an account that
	// are not completed or declined, whose submission and template are not archived, and
	// that have an email and an invitation time.
	EachPendingSubmitter(ctx context.Context, accountID uint, batchSize int, fn func(models.Submitter) error) error
	// FindSubmitter loads a submitter with its submission, template and account.
	FindSubmitter(ctx context.Context, id uint) (*models.Submitter, error)
	CreateTestSubmission(ctx context.Context, accountID uint, email string) (*models.Submitter, error)
	DeleteSubmission(ctx context.Context, submissionID uint) error
}

// Ledger is the append-only record of delivered reminders.
type Ledger interface {
	SentReminderNumbers(ctx context.Context, submitterID uint) ([]int, error)
	// AppendReminderEvent records a delivered reminder. It reports false when the
	// number was already recorded for the submitter.
	AppendReminderEvent(ctx context.Context, submitter *models.Submitter, number int, at time.Time) (bool, error)
}

// TaskQueue is the delayed task queue the scheduler and dispatcher use.
type TaskQueue interface {
	Enqueue(ctx context.Context, t queue.Task) error
	ScheduleIn(ctx context.Context, t queue.Task, delay time.Duration) error
	IsScheduled(ctx context.Context, kind string) (bool, error)
}
