package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"docremind/internal/metrics"
	"docremind/internal/models"
	"docremind/internal/queue"
	"docremind/internal/reporting"
)

// rescheduleTimeout bounds all reschedule attempts, which run even after the tick's context is gone.
const (
	rescheduleTimeout  = 30 * time.Second
	rescheduleAttempts = 4
)

// ReminderWorkerConfig holds the scheduling knobs.
type ReminderWorkerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	BatchSize    int

	// WatchInterval is how often Watch checks that a tick is queued.
	// Defaults to the smaller of Interval and five minutes.
	WatchInterval time.Duration
}

// ReminderWorker walks every active account on each tick and dispatches the
// reminders that are due. Each tick schedules the next one through the task
// queue, so the chain keeps running for the life of the deployment.
type ReminderWorker struct {
	accounts   AccountStore
	submitters SubmitterStore
	ledger     Ledger
	dispatcher ReminderDispatcher
	queue      TaskQueue

	cfg      ReminderWorkerConfig
	log      zerolog.Logger
	reporter reporting.Reporter
	metrics  *metrics.Metrics
	now      func() time.Time

	// rescheduleBackoff is the wait before the second reschedule attempt; it doubles after that.
	rescheduleBackoff time.Duration
}

// TickResult summarizes one pass over the accounts.
type TickResult struct {
	Accounts   int
	Skipped    int
	Failed     int
	Evaluated  int
	Dispatched int
}

func NewReminderWorker(
	accounts AccountStore,
	submitters SubmitterStore,
	ledger Ledger,
	dispatcher ReminderDispatcher,
	q TaskQueue,
	cfg ReminderWorkerConfig,
	log zerolog.Logger,
	reporter reporting.Reporter,
	m *metrics.Metrics,
) *ReminderWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = min(cfg.Interval, 5*time.Minute)
	}
	return &ReminderWorker{
		accounts:   accounts,
		submitters: submitters,
		ledger:     ledger,
		dispatcher: dispatcher,
		queue:      q,
		cfg:        cfg,
		log:        log,
		reporter:   reporter,
		metrics:    m,
		now:        time.Now,

		rescheduleBackoff: time.Second,
	}
}

// EnsureScheduled schedules a tick unless one is already queued, which is the
// case after a process restart. It reports whether it scheduled.
func (w *ReminderWorker) EnsureScheduled(ctx context.Context) (bool, error) {
	scheduled, err := w.queue.IsScheduled(ctx, TaskProcessReminders)
	if err != nil {
		return false, fmt.Errorf("check scheduled reminder job: %w", err)
	}
	if scheduled {
		w.log.Info().Msg("reminder job already scheduled, skipping")
		return false, nil
	}

	w.log.Info().Dur("delay", w.cfg.InitialDelay).Msg("scheduling initial reminder job")
	if err := w.queue.ScheduleIn(ctx, queue.RecurringTask(TaskProcessReminders), w.cfg.InitialDelay); err != nil {
		return false, fmt.Errorf("schedule initial reminder job: %w", err)
	}
	return true, nil
}

// Watch calls EnsureScheduled every WatchInterval until ctx is done, so a chain
// broken by a failed reschedule is restored without a restart.
func (w *ReminderWorker) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		scheduled, err := w.EnsureScheduled(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("reminder chain check failed")
			}
			continue
		}
		if scheduled {
			w.log.Warn().Msg("reminder job was missing from the queue, rescheduled")
			w.reporter.Warning("reminder job was missing from the queue, rescheduled", nil)
		}
	}
}

// HandleTask runs a tick as the handler for TaskProcessReminders.
func (w *ReminderWorker) HandleTask(ctx context.Context, _ queue.Task) error {
	_, err := w.ProcessReminders(ctx)
	return err
}

// ProcessReminders runs one tick. Failures of a single account are reported and
// skipped. The next tick is scheduled on every exit path, including panics; a
// reschedule that keeps failing is returned as an error.
func (w *ReminderWorker) ProcessReminders(ctx context.Context) (result TickResult, err error) {
	start := w.now()
	defer func() {
		if rerr := w.reschedule(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	defer func() {
		if w.metrics != nil {
			w.metrics.Ticks.Inc()
			w.metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
		w.log.Info().
			Int("accounts", result.Accounts).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Int("evaluated", result.Evaluated).
			Int("dispatched", result.Dispatched).
			Dur("took", time.Since(start)).
			Msg("reminder tick completed")
	}()

	err = w.accounts.EachActiveAccount(ctx, w.cfg.BatchSize, func(account models.Account) error {
		result.Accounts++

		stats, accErr := w.ProcessAccount(ctx, account)
		result.Evaluated += stats.Evaluated
		result.Dispatched += stats.Dispatched
		if stats.Skipped {
			result.Skipped++
		}
		if accErr != nil {
			result.Failed++
			w.log.Error().Err(accErr).Uint("account_id", account.ID).Msg("reminder processing failed for account")
			w.reporter.Error(accErr, reporting.Fields{"account_id": account.ID})
			if w.metrics != nil {
				w.metrics.AccountFailures.Inc()
			}
		}
		// A shutdown ends the pass; other account failures do not.
		return ctx.Err()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("enumerate active accounts: %w", err)
		w.log.Error().Err(err).Msg("reminder tick aborted")
		w.reporter.Error(err, nil)
	}
	return result, err
}

func (w *ReminderWorker) reschedule(ctx context.Context) error {
	// The tick's context may already be canceled; the chain must survive that.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rescheduleTimeout)
	defer cancel()

	task := queue.RecurringTask(TaskProcessReminders)
	backoff := w.rescheduleBackoff

	var err error
	for attempt := 1; attempt <= rescheduleAttempts; attempt++ {
		if err = w.queue.ScheduleIn(rctx, task, w.cfg.Interval); err == nil {
			w.log.Debug().Dur("in", w.cfg.Interval).Int("attempt", attempt).Msg("reminder job rescheduled")
			return nil
		}
		w.log.Warn().Err(err).Int("attempt", attempt).Msg("reminder job reschedule failed")
		if attempt == rescheduleAttempts {
			break
		}

		if !waitFor(rctx, backoff) {
			break
		}
		backoff *= 2
	}

	err = fmt.Errorf("reschedule reminder job: %w", err)
	w.log.Error().Err(err).Msg("reminder chain broken until the next watch check")
	w.reporter.Error(err, nil)
	return err
}

// AccountStats summarizes the work done for one account in a tick.
type AccountStats struct {
	Skipped    bool
	Evaluated  int
	Dispatched int
}

// ProcessAccount evaluates every pending submitter of one account. A panic is
// converted to an error so it stays inside the account boundary.
func (w *ReminderWorker) ProcessAccount(ctx context.Context, account models.Account) (stats AccountStats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing account %d: %v", account.ID, rec)
		}
	}()

	settings, err := w.accounts.ReminderSettings(ctx, account.ID)
	if err != nil {
		return stats, fmt.Errorf("load reminder settings: %w", err)
	}

	durations := ResolveReminderDurations(settings)
	if len(durations) == 0 {
		stats.Skipped = true
		if w.metrics != nil {
			w.metrics.AccountsSkipped.Inc()
		}
		return stats, nil
	}

	now := w.now()
	err = w.submitters.EachPendingSubmitter(ctx, account.ID, w.cfg.BatchSize, func(s models.Submitter) error {
		stats.Evaluated++
		if w.metrics != nil {
			w.metrics.Evaluated.Inc()
		}

		dispatched, err := w.evaluateSubmitter(ctx, &s, durations, now)
		if err != nil {
			return err
		}
		if dispatched {
			stats.Dispatched++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("evaluate submitters: %w", err)
	}
	return stats, nil
}

func (w *ReminderWorker) evaluateSubmitter(ctx context.Context, s *models.Submitter, durations []ReminderDuration, now time.Time) (bool, error) {
	if s.SentAt == nil {
		return false, nil
	}

	sent, err := w.ledger.SentReminderNumbers(ctx, s.ID)
	if err != nil {
		return false, fmt.Errorf("load sent reminders for submitter %d: %w", s.ID, err)
	}

	number, ok := NextReminder(*s.SentAt, sent, durations, now)
	if !ok {
		return false, nil
	}

	if err := w.dispatcher.DispatchReminder(ctx, s.ID, number); err != nil {
		return false, err
	}

	w.log.Debug().Uint("submitter_id", s.ID).Int("reminder_number", number).Msg("reminder dispatched")
	if w.metrics != nil {
		w.metrics.Dispatched.WithLabelValues(metrics.Number(number)).Inc()
	}
	return true, nil
}

// waitFor sleeps for d and reports false if ctx ended first.
func waitFor(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
