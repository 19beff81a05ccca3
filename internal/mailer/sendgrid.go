package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridTransport sends through the SendGrid v3 API.
type SendGridTransport struct {
	client  *sendgrid.Client
	timeout time.Duration
}

const sendGridHost = "https://api.sendgrid.com"

func NewSendGridTransport(apiKey string, timeout time.Duration) *SendGridTransport {
	return newSendGridTransport(apiKey, sendGridHost, timeout)
}

func newSendGridTransport(apiKey, host string, timeout time.Duration) *SendGridTransport {
	request := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	request.Method = "POST"
	return &SendGridTransport{
		client:  &sendgrid.Client{Request: request},
		timeout: timeout,
	}
}

func (t *SendGridTransport) Name() string { return "sendgrid" }

func (t *SendGridTransport) Send(ctx context.Context, msg Message) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	from := mail.NewEmail(msg.FromName, msg.From)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainBody, msg.HTMLBody)

	response, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: failed to send email to %s: %d %s", msg.To, response.StatusCode, response.Body)
	}
	return nil
}
