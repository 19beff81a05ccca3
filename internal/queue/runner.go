package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"docremind/internal/metrics"
)

// HandlerFunc processes one task. A returned error is logged; the task is not retried.
type HandlerFunc func(ctx context.Context, t Task) error

// Source is the queue surface the runner consumes.
type Source interface {
	Promote(ctx context.Context, now time.Time) (int, error)
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Recover(ctx context.Context) (int, error)
}

type RunnerOptions struct {
	Concurrency    int
	PollInterval   time.Duration
	DequeueTimeout time.Duration
}

// Runner promotes due scheduled tasks and drains the ready list with a worker pool.
type Runner struct {
	src      Source
	opts     RunnerOptions
	log      zerolog.Logger
	metrics  *metrics.Metrics
	handlers map[string]HandlerFunc

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(src Source, opts RunnerOptions, log zerolog.Logger, m *metrics.Metrics) (*Runner, error) {
	if src == nil {
		return nil, errors.New("queue source must not be nil")
	}
	if opts.Concurrency <= 0 {
		return nil, errors.New("concurrency must be > 0")
	}
	if opts.PollInterval <= 0 {
		return nil, errors.New("poll interval must be > 0")
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = time.Second
	}
	return &Runner{
		src:      src,
		opts:     opts,
		log:      log,
		metrics:  m,
		handlers: make(map[string]HandlerFunc),
	}, nil
}

// Handle registers the handler for a task kind. Register before Start.
func (r *Runner) Handle(kind string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = fn
}

// Start recovers in-flight tasks and launches the poller and workers.
// It returns false if the runner is already running.
func (r *Runner) Start(parent context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return false, nil
	}

	recovered, err := r.src.Recover(parent)
	if err != nil {
		return false, err
	}
	if recovered > 0 {
		r.log.Warn().Int("tasks", recovered).Msg("requeued in-flight tasks from previous run")
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.running.Store(true)

	r.wg.Add(1)
	go r.poll(ctx)

	for i := 0; i < r.opts.Concurrency; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}

	r.log.Info().
		Int("concurrency", r.opts.Concurrency).
		Dur("poll_interval", r.opts.PollInterval).
		Msg("queue runner started")
	return true, nil
}

// Stop cancels the workers and waits for in-progress tasks to return.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Load() {
		return false
	}

	r.cancel()
	r.wg.Wait()
	r.running.Store(false)

	r.log.Info().Msg("queue runner stopped")
	return true
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) poll(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		if n, err := r.src.Promote(ctx, time.Now()); err != nil {
			if ctx.Err() == nil {
				r.log.Error().Err(err).Msg("promote scheduled tasks failed")
			}
		} else if n > 0 {
			r.log.Debug().Int("tasks", n).Msg("promoted scheduled tasks")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) work(ctx context.Context, idx int) {
	defer r.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		d, err := r.src.Dequeue(ctx, r.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error().Err(err).Int("worker", idx).Msg("dequeue failed")
			sleepCtx(ctx, r.opts.PollInterval)
			continue
		}
		if d == nil {
			continue
		}

		r.process(ctx, d)
	}
}

func (r *Runner) process(ctx context.Context, d *Delivery) {
	log := r.log.With().Str("task_id", d.Task.ID).Str("kind", d.Task.Kind).Logger()

	r.mu.Lock()
	fn := r.handlers[d.Task.Kind]
	r.mu.Unlock()

	start := time.Now()
	outcome := "ok"
	var err error
	if fn == nil {
		outcome = "unknown"
		err = fmt.Errorf("no handler registered for %q", d.Task.Kind)
	} else {
		err = safeCall(ctx, fn, d.Task)
		if err != nil {
			outcome = "error"
		}
	}

	if err != nil {
		log.Warn().Err(err).Dur("took", time.Since(start)).Msg("task failed")
	} else {
		log.Debug().Dur("took", time.Since(start)).Msg("task completed")
	}
	if r.metrics != nil {
		r.metrics.TasksProcessed.WithLabelValues(d.Task.Kind, outcome).Inc()
	}

	// Interrupted tasks stay in flight and are requeued by Recover on the next start.
	if ctx.Err() != nil {
		return
	}
	if err := r.src.Ack(ctx, d); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}

func safeCall(ctx context.Context, fn HandlerFunc, t Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return fn(ctx, t)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
