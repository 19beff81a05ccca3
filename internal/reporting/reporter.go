// Package reporting forwards per-account and per-delivery failures to error tracking.
package reporting

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Fields carry identifiers such as account_id or submitter_id alongside a report.
type Fields map[string]any

// Reporter receives failures that operators should see beyond the log stream.
type Reporter interface {
	Error(err error, fields Fields)
	Warning(msg string, fields Fields)
}

// LogReporter writes reports to the structured log only.
type LogReporter struct {
	log zerolog.Logger
}

func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (r *LogReporter) Error(err error, fields Fields) {
	r.log.Error().Err(err).Fields(map[string]any(fields)).Msg("reported error")
}

func (r *LogReporter) Warning(msg string, fields Fields) {
	r.log.Warn().Fields(map[string]any(fields)).Msg(msg)
}

// SentryReporter sends reports to Sentry and also logs them.
type SentryReporter struct {
	hub *sentry.Hub
	log *LogReporter
}

// NewSentryReporter creates a reporter bound to its own hub so nothing touches sentry globals.
func NewSentryReporter(dsn, environment string, log zerolog.Logger) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &SentryReporter{
		hub: sentry.NewHub(client, sentry.NewScope()),
		log: NewLogReporter(log),
	}, nil
}

func (r *SentryReporter) Error(err error, fields Fields) {
	r.log.Error(err, fields)
	r.hub.WithScope(func(scope *sentry.Scope) {
		applyFields(scope, fields)
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Warning(msg string, fields Fields) {
	r.log.Warning(msg, fields)
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		applyFields(scope, fields)
		r.hub.CaptureMessage(msg)
	})
}

// Flush waits for buffered events to be sent.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

func applyFields(scope *sentry.Scope, fields Fields) {
	if len(fields) == 0 {
		return
	}
	ctx := sentry.Context{}
	for k, v := range fields {
		scope.SetTag(k, fmt.Sprint(v))
		ctx[k] = v
	}
	scope.SetContext("reminder", ctx)
}
