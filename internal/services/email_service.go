package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"docremind/internal/mailer"
	"docremind/internal/models"
)

// ErrSMTPNotConfigured is returned when an account has no SMTP settings to test
var ErrSMTPNotConfigured = errors.New("smtp settings are not configured for this account")

// SMTPFactory builds a transport from account SMTP settings.
type SMTPFactory func(settings models.SMTPSettings, timeouts mailer.Timeouts) (mailer.Transport, error)

// DefaultSMTPFactory builds go-mail backed transports.
func DefaultSMTPFactory(settings models.SMTPSettings, timeouts mailer.Timeouts) (mailer.Transport, error) {
	return mailer.NewSMTPTransport(settings, timeouts)
}

type EmailServiceConfig struct {
	// From holds the default sender addresses; one is picked per message.
	From     []string
	FromName string
	Timeouts mailer.Timeouts
}

// EmailService resolves the transport and sender for an account and sends.
type EmailService struct {
	accounts AccountStore
	fallback mailer.Transport
	newSMTP  SMTPFactory
	cfg      EmailServiceConfig
	pick     func(n int) int
}

func NewEmailService(accounts AccountStore, fallback mailer.Transport, newSMTP SMTPFactory, cfg EmailServiceConfig) *EmailService {
	if newSMTP == nil {
		newSMTP = DefaultSMTPFactory
	}
	return &EmailService{
		accounts: accounts,
		fallback: fallback,
		newSMTP:  newSMTP,
		cfg:      cfg,
		pick:     rand.IntN,
	}
}

// ResolveTransport prefers the account's own SMTP settings and falls back to
// the process default transport and sender.
func (s *EmailService) ResolveTransport(ctx context.Context, account models.Account) (mailer.Transport, string, string, error) {
	settings, err := s.accounts.SMTPSettings(ctx, account.ID)
	if err != nil {
		return nil, "", "", fmt.Errorf("load smtp settings: %w", err)
	}

	if !settings.IsEmpty() {
		tr, err := s.newSMTP(*settings, s.cfg.Timeouts)
		if err != nil {
			return nil, "", "", fmt.Errorf("build account smtp transport: %w", err)
		}
		from := settings.FromEmail
		if from == "" {
			from = s.defaultSender()
		}
		return tr, from, account.Name, nil
	}

	if s.fallback == nil {
		return nil, "", "", mailer.ErrNoTransport
	}
	return s.fallback, s.defaultSender(), s.cfg.FromName, nil
}

func (s *EmailService) defaultSender() string {
	switch len(s.cfg.From) {
	case 0:
		return ""
	case 1:
		return s.cfg.From[0]
	default:
		return s.cfg.From[s.pick(len(s.cfg.From))]
	}
}

// Send delivers msg on behalf of account, filling in the sender.
func (s *EmailService) Send(ctx context.Context, account models.Account, msg mailer.Message) error {
	tr, from, fromName, err := s.ResolveTransport(ctx, account)
	if err != nil {
		return err
	}
	if from != "" {
		msg.From = from
		msg.FromName = fromName
	}
	if msg.From == "" {
		return errors.New("no sender address configured")
	}
	return tr.Send(ctx, msg)
}

// SendSMTPTest sends a test message through the account's SMTP settings only.
func (s *EmailService) SendSMTPTest(ctx context.Context, account models.Account, to string) error {
	if err := mailer.ValidateRecipient(to); err != nil {
		return err
	}

	settings, err := s.accounts.SMTPSettings(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load smtp settings: %w", err)
	}
	if settings.IsEmpty() {
		return ErrSMTPNotConfigured
	}

	tr, err := s.newSMTP(*settings, s.cfg.Timeouts)
	if err != nil {
		return fmt.Errorf("build account smtp transport: %w", err)
	}

	from := settings.FromEmail
	if from == "" {
		from = s.defaultSender()
	}
	return tr.Send(ctx, mailer.Message{
		From:      from,
		FromName:  account.Name,
		To:        to,
		Subject:   "SMTP settings test",
		PlainBody: "This is a test email confirming that your SMTP settings work.",
		HTMLBody:  "<p>This is a test email confirming that your SMTP settings work.</p>",
	})
}
