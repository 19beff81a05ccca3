// Package mailer sends outbound email through SendGrid, SMTP or the log.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrInvalidRecipient is returned when the recipient address can not be used
	ErrInvalidRecipient = errors.New("invalid recipient address")
	// ErrNoTransport is returned when no transport is available for a message
	ErrNoTransport = errors.New("no mail transport configured")
)

// Message is a rendered email ready for a transport.
type Message struct {
	From      string
	FromName  string
	To        string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Transport delivers a message synchronously; an error means nothing was accepted.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// ValidateRecipient checks that the recipient is a single plain address.
func ValidateRecipient(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRecipient)
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, addr)
	}
	if parsed.Address != addr {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, addr)
	}
	return nil
}

// FormatAddress renders `"Name" <addr>` with quotes stripped from the name.
func FormatAddress(name, addr string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `"`, ""))
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%q <%s>", name, addr)
}
