package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"docremind/internal/mailer"
	"docremind/internal/metrics"
	"docremind/internal/models"
	"docremind/internal/queue"
	"docremind/internal/reporting"
)

// Reasons a delivery did not result in a sent reminder
const (
	skipNotFound      = "not_found"
	skipNotPending    = "not_pending"
	skipInactive      = "account_inactive"
	skipAlreadySent   = "already_sent"
	failLookup        = "lookup"
	failRecipient     = "invalid_recipient"
	failTransport     = "transport"
	failLedger        = "ledger"
	failRateLimitWait = "rate_limit"
)

// ReminderDelivery sends one reminder and records it in the ledger.
type ReminderDelivery struct {
	submitters SubmitterStore
	accounts   AccountStore
	ledger     Ledger
	email      *EmailService
	messages   MessageBuilder
	limiter    *rate.Limiter

	log      zerolog.Logger
	reporter reporting.Reporter
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewReminderDelivery builds the delivery worker. A nil limiter disables rate limiting.
func NewReminderDelivery(
	submitters SubmitterStore,
	accounts AccountStore,
	ledger Ledger,
	email *EmailService,
	messages MessageBuilder,
	limiter *rate.Limiter,
	log zerolog.Logger,
	reporter reporting.Reporter,
	m *metrics.Metrics,
) *ReminderDelivery {
	return &ReminderDelivery{
		submitters: submitters,
		accounts:   accounts,
		ledger:     ledger,
		email:      email,
		messages:   messages,
		limiter:    limiter,
		log:        log,
		reporter:   reporter,
		metrics:    m,
		now:        time.Now,
	}
}

// HandleTask runs a delivery as the handler for TaskSendReminder.
func (d *ReminderDelivery) HandleTask(ctx context.Context, t queue.Task) error {
	var p ReminderPayload
	if err := t.Decode(&p); err != nil {
		return err
	}
	if p.ReminderNumber == 0 {
		p.ReminderNumber = 1
	}
	return d.Deliver(ctx, p.SubmitterID, p.ReminderNumber)
}

// Deliver re-checks the submitter, sends reminder number and appends the ledger
// event. Nothing is recorded when the send fails, so a later tick retries.
func (d *ReminderDelivery) Deliver(ctx context.Context, submitterID uint, number int) error {
	log := d.log.With().Uint("submitter_id", submitterID).Int("reminder_number", number).Logger()

	s, err := d.submitters.FindSubmitter(ctx, submitterID)
	if errors.Is(err, ErrSubmitterNotFound) {
		d.skip(log, skipNotFound)
		return nil
	}
	if err != nil {
		return d.fail(s, number, failLookup, fmt.Errorf("load submitter %d: %w", submitterID, err))
	}

	// State may have changed since the tick dispatched this reminder.
	if !s.IsPending() {
		d.skip(log, skipNotPending)
		return nil
	}
	if !s.Account.IsActive() {
		d.reporter.Warning("skipping reminder for archived account", reporting.Fields{
			"account_id":   s.AccountID,
			"submitter_id": s.ID,
		})
		d.skip(log, skipInactive)
		return nil
	}

	sent, err := d.ledger.SentReminderNumbers(ctx, s.ID)
	if err != nil {
		return d.fail(s, number, failLookup, fmt.Errorf("load sent reminders: %w", err))
	}
	if slices.Contains(sent, number) {
		d.skip(log, skipAlreadySent)
		return nil
	}

	settings, err := d.accounts.ReminderSettings(ctx, s.AccountID)
	if err != nil {
		return d.fail(s, number, failLookup, fmt.Errorf("load reminder settings: %w", err))
	}

	msg := withSubjectPrefix(d.messages.ReminderMessage(s, number), settings)
	if reason, err := d.send(ctx, s.Account, msg); err != nil {
		return d.fail(s, number, reason, err)
	}

	appended, err := d.ledger.AppendReminderEvent(ctx, s, number, d.now())
	if err != nil {
		return d.fail(s, number, failLedger, fmt.Errorf("record reminder event: %w", err))
	}
	if !appended {
		log.Warn().Msg("reminder event already recorded by a concurrent delivery")
	}

	if d.metrics != nil {
		d.metrics.Sent.WithLabelValues(metrics.Number(number)).Inc()
	}
	log.Info().Str("to", s.Email).Msg("reminder email sent")
	return nil
}

// SendTest sends a reminder for a disposable submission that is deleted
// afterwards. The ledger is never written.
func (d *ReminderDelivery) SendTest(ctx context.Context, accountID uint, email string) error {
	if err := mailer.ValidateRecipient(email); err != nil {
		return err
	}

	account, err := d.accounts.FindAccount(ctx, accountID)
	if err != nil {
		return err
	}

	s, err := d.submitters.CreateTestSubmission(ctx, account.ID, email)
	if err != nil {
		return fmt.Errorf("create test submission: %w", err)
	}
	defer func() {
		// The request context may be gone; cleanup still has to run.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := d.submitters.DeleteSubmission(cctx, s.SubmissionID); err != nil {
			d.log.Error().Err(err).Uint("submission_id", s.SubmissionID).Msg("failed to delete test submission")
		}
	}()
	s.Account = *account

	settings, err := d.accounts.ReminderSettings(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load reminder settings: %w", err)
	}

	msg := withSubjectPrefix(d.messages.ReminderMessage(s, 1), settings)
	if _, err := d.send(ctx, *account, msg); err != nil {
		return err
	}
	d.log.Info().Uint("account_id", account.ID).Str("to", email).Msg("test reminder email sent")
	return nil
}

func (d *ReminderDelivery) send(ctx context.Context, account models.Account, msg mailer.Message) (string, error) {
	if err := mailer.ValidateRecipient(msg.To); err != nil {
		return failRecipient, err
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return failRateLimitWait, fmt.Errorf("wait for send slot: %w", err)
		}
	}
	if err := d.email.Send(ctx, account, msg); err != nil {
		return failTransport, fmt.Errorf("send reminder email: %w", err)
	}
	return "", nil
}

func (d *ReminderDelivery) skip(log zerolog.Logger, reason string) {
	log.Info().Str("reason", reason).Msg("reminder delivery skipped")
	if d.metrics != nil {
		d.metrics.DeliveriesSkipped.WithLabelValues(reason).Inc()
	}
}

func (d *ReminderDelivery) fail(s *models.Submitter, number int, reason string, err error) error {
	fields := reporting.Fields{"reminder_number": number, "reason": reason}
	if s != nil {
		fields["submitter_id"] = s.ID
		fields["account_id"] = s.AccountID
	}
	d.log.Error().Err(err).Fields(map[string]any(fields)).Msg("reminder delivery failed")
	d.reporter.Error(err, fields)
	if d.metrics != nil {
		d.metrics.DeliveryFailures.WithLabelValues(reason).Inc()
	}
	return err
}
