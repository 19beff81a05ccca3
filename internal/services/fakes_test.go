package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"docremind/internal/mailer"
	"docremind/internal/models"
	"docremind/internal/queue"
	"docremind/internal/reporting"
)

type fakeAccounts struct {
	accounts     []models.Account
	reminders    map[uint]*models.ReminderSettings
	smtp         map[uint]*models.SMTPSettings
	failSettings map[uint]error
	panicOn      map[uint]bool
	enumErr      error
}

func (f *fakeAccounts) EachActiveAccount(ctx context.Context, batchSize int, fn func(models.Account) error) error {
	if f.enumErr != nil {
		return f.enumErr
	}
	for _, a := range f.accounts {
		if !a.IsActive() {
			continue
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAccounts) FindAccount(ctx context.Context, id uint) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeAccounts) ReminderSettings(ctx context.Context, accountID uint) (*models.ReminderSettings, error) {
	if f.panicOn[accountID] {
		panic("settings exploded")
	}
	if err := f.failSettings[accountID]; err != nil {
		return nil, err
	}
	return f.reminders[accountID], nil
}

func (f *fakeAccounts) SMTPSettings(ctx context.Context, accountID uint) (*models.SMTPSettings, error) {
	return f.smtp[accountID], nil
}

type fakeSubmitters struct {
	mu        sync.Mutex
	byAccount map[uint][]models.Submitter
	byID      map[uint]*models.Submitter
	visited   map[uint]int
	nextID    uint
	created   []*models.Submitter
	deleted   []uint
	findErr   error
}

func newFakeSubmitters() *fakeSubmitters {
	return &fakeSubmitters{
		byAccount: map[uint][]models.Submitter{},
		byID:      map[uint]*models.Submitter{},
		visited:   map[uint]int{},
		nextID:    1000,
	}
}

func (f *fakeSubmitters) add(s models.Submitter) {
	f.byAccount[s.AccountID] = append(f.byAccount[s.AccountID], s)
	cp := s
	f.byID[s.ID] = &cp
}

func (f *fakeSubmitters) EachPendingSubmitter(ctx context.Context, accountID uint, batchSize int, fn func(models.Submitter) error) error {
	for _, s := range f.byAccount[accountID] {
		if !s.IsPending() {
			continue
		}
		f.visited[accountID]++
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSubmitters) FindSubmitter(ctx context.Context, id uint) (*models.Submitter, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	s, ok := f.byID[id]
	if !ok {
		return nil, ErrSubmitterNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmitters) CreateTestSubmission(ctx context.Context, accountID uint, email string) (*models.Submitter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Now()
	s := &models.Submitter{
		ID:           f.nextID,
		AccountID:    accountID,
		SubmissionID: f.nextID,
		Slug:         "test-slug",
		Email:        email,
		SentAt:       &now,
		Submission:   models.Submission{ID: f.nextID, Template: models.Template{Name: "Test Template"}},
	}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeSubmitters) DeleteSubmission(ctx context.Context, submissionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, submissionID)
	return nil
}

type ledgerEntry struct {
	SubmitterID uint
	Number      int
}

type fakeLedger struct {
	mu        sync.Mutex
	sent      map[uint][]int
	appended  []ledgerEntry
	appendErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{sent: map[uint][]int{}}
}

func (f *fakeLedger) SentReminderNumbers(ctx context.Context, submitterID uint) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent[submitterID]), nil
}

func (f *fakeLedger) AppendReminderEvent(ctx context.Context, s *models.Submitter, number int, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return false, f.appendErr
	}
	if slices.Contains(f.sent[s.ID], number) {
		return false, nil
	}
	f.sent[s.ID] = append(f.sent[s.ID], number)
	f.appended = append(f.appended, ledgerEntry{SubmitterID: s.ID, Number: number})
	return true, nil
}

type scheduledTask struct {
	Task  queue.Task
	Delay time.Duration
}

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []queue.Task
	scheduled  []scheduledTask
	isSched    bool
	enqueueErr error
	schedErr   error

	// schedFailures fails that many ScheduleIn calls with schedErr before succeeding.
	schedFailures int
	schedCalls    int
}

func (f *fakeQueue) Enqueue(ctx context.Context, t queue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, t)
	return nil
}

func (f *fakeQueue) ScheduleIn(ctx context.Context, t queue.Task, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedCalls++
	if f.schedErr != nil && (f.schedFailures == 0 || f.schedCalls <= f.schedFailures) {
		return f.schedErr
	}
	f.scheduled = append(f.scheduled, scheduledTask{Task: t, Delay: delay})
	return nil
}

func (f *fakeQueue) IsScheduled(ctx context.Context, kind string) (bool, error) {
	return f.isSched, nil
}

type fakeDispatcher struct {
	dispatched []ledgerEntry
	failFor    map[uint]error
}

func (f *fakeDispatcher) DispatchReminder(ctx context.Context, submitterID uint, number int) error {
	if err := f.failFor[submitterID]; err != nil {
		return err
	}
	f.dispatched = append(f.dispatched, ledgerEntry{SubmitterID: submitterID, Number: number})
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	name string
	sent []mailer.Message
	err  error
}

func (f *fakeTransport) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeTransport) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeReporter struct {
	mu       sync.Mutex
	errors   []error
	fields   []reporting.Fields
	warnings []string
}

func (f *fakeReporter) Error(err error, fields reporting.Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, err)
	f.fields = append(f.fields, fields)
}

func (f *fakeReporter) Warning(msg string, fields reporting.Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = append(f.warnings, msg)
}

var errBoom = errors.New("boom")

func ptrTime(t time.Time) *time.Time { return &t }
