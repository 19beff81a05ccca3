package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTransport accepts every message and only logs it. Used when no transport is configured.
type LogTransport struct {
	log zerolog.Logger
}

func NewLogTransport(log zerolog.Logger) *LogTransport {
	return &LogTransport{log: log}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.log.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email not sent, no transport configured")
	return nil
}
