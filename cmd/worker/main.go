package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"docremind/internal/config"
	"docremind/internal/database"
	"docremind/internal/handlers"
	"docremind/internal/logging"
	"docremind/internal/mailer"
	"docremind/internal/metrics"
	"docremind/internal/models"
	"docremind/internal/queue"
	"docremind/internal/reporting"
	"docremind/internal/secrets"
	"docremind/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("error", "console", os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout).With().Str("profile", cfg.Profile).Logger()
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker exited with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, flush := newReporter(cfg, log)
	defer flush()

	cipher, err := secrets.NewCipher([]byte(cfg.EncryptionKey))
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.DSN, logging.Component(log, "database"))
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	store := database.NewStore(db, cipher)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	q := queue.NewRedisQueue(rdb, cfg.Redis.Namespace)
	if err := q.Ping(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	fallback, err := newDefaultTransport(cfg, logging.Component(log, "mailer"))
	switch {
	case errors.Is(err, mailer.ErrNoTransport):
		log.Warn().Msg("no default mail transport, only accounts with their own SMTP settings get reminders")
	case err != nil:
		return err
	default:
		log.Info().Str("transport", fallback.Name()).Msg("default mail transport configured")
	}

	email := services.NewEmailService(store, fallback, services.DefaultSMTPFactory, services.EmailServiceConfig{
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
		Timeouts: mailer.Timeouts{Open: cfg.Mail.OpenTimeout, Read: cfg.Mail.ReadTimeout},
	})

	burst := int(cfg.Worker.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	delivery := services.NewReminderDelivery(
		store, store, store, email,
		services.InvitationMessageBuilder{BaseURL: cfg.BaseURL},
		rate.NewLimiter(rate.Limit(cfg.Worker.RatePerSec), burst),
		logging.Component(log, "delivery"), reporter, m,
	)

	worker := services.NewReminderWorker(
		store, store, store,
		services.NewQueueDispatcher(q), q,
		services.ReminderWorkerConfig{
			Interval:      cfg.Scheduler.Interval,
			InitialDelay:  cfg.Scheduler.InitialDelay,
			BatchSize:     cfg.Scheduler.BatchSize,
			WatchInterval: cfg.Scheduler.WatchInterval,
		},
		logging.Component(log, "scheduler"), reporter, m,
	)

	runner, err := queue.NewRunner(q, queue.RunnerOptions{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
	}, logging.Component(log, "queue"), m)
	if err != nil {
		return err
	}
	runner.Handle(services.TaskProcessReminders, worker.HandleTask)
	runner.Handle(services.TaskSendReminder, delivery.HandleTask)

	if _, err := worker.EnsureScheduled(ctx); err != nil {
		return err
	}
	if _, err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()
	go worker.Watch(ctx)

	if cfg.HTTP.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is not set, admin routes are unauthenticated")
	}
	h := handlers.New(store, delivery, email, q, map[string]handlers.HealthCheck{
		"database": store.Ping,
		"redis":    q.Ping,
	}, logging.Component(log, "http"))
	srv := &http.Server{
		Addr: cfg.HTTP.Address,
		Handler: handlers.NewRouter(h, handlers.RouterConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AdminToken:     cfg.HTTP.AdminToken,
			Gatherer:       reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Address).Msg("admin server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin server shutdown failed")
	}
	return nil
}

func newReporter(cfg *config.Config, log zerolog.Logger) (reporting.Reporter, func()) {
	if cfg.SentryDSN == "" {
		return reporting.NewLogReporter(log), func() {}
	}
	sr, err := reporting.NewSentryReporter(cfg.SentryDSN, cfg.Profile, log)
	if err != nil {
		log.Error().Err(err).Msg("sentry disabled")
		return reporting.NewLogReporter(log), func() {}
	}
	return sr, func() { sr.Flush(5 * time.Second) }
}

// newDefaultTransport picks SendGrid, then the process SMTP settings, then the
// log outside production. It returns ErrNoTransport when nothing fits.
func newDefaultTransport(cfg *config.Config, log zerolog.Logger) (mailer.Transport, error) {
	timeout := cfg.Mail.OpenTimeout + cfg.Mail.ReadTimeout

	switch {
	case cfg.Mail.SendGridAPIKey != "":
		return mailer.NewSendGridTransport(cfg.Mail.SendGridAPIKey, timeout), nil
	case cfg.Mail.SMTP.Host != "":
		tr, err := mailer.NewSMTPTransport(models.SMTPSettings{
			Host:     cfg.Mail.SMTP.Host,
			Port:     models.FlexPort(cfg.Mail.SMTP.Port),
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			Security: cfg.Mail.SMTP.Security,
			Domain:   cfg.Mail.SMTP.Domain,
		}, mailer.Timeouts{Open: cfg.Mail.OpenTimeout, Read: cfg.Mail.ReadTimeout})
		if err != nil {
			return nil, err
		}
		return tr, nil
	case cfg.IsProduction():
		return nil, mailer.ErrNoTransport
	default:
		return mailer.NewLogTransport(log), nil
	}
}
