package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"docremind/internal/models"
)

// Timeouts bound a single SMTP conversation.
type Timeouts struct {
	Open time.Duration
	Read time.Duration
}

// SMTPTransport sends through an SMTP relay.
type SMTPTransport struct {
	host     string
	port     int
	opts     []gomail.Option
	timeouts Timeouts
}

// NewSMTPTransport builds a transport from SMTP settings.
//
// security "ssl" or "tls" (or blank on port 465) selects implicit TLS, "noverify"
// skips certificate verification, anything else uses STARTTLS when offered.
// Authentication is attempted only when a password is set.
func NewSMTPTransport(s models.SMTPSettings, timeouts Timeouts) (*SMTPTransport, error) {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	port := int(s.Port)
	security := strings.ToLower(strings.TrimSpace(s.Security))

	opts := []gomail.Option{
		gomail.WithTimeout(timeouts.Read),
	}
	if port > 0 {
		opts = append(opts, gomail.WithPort(port))
	}
	if s.Domain != "" {
		opts = append(opts, gomail.WithHELO(s.Domain))
	}

	implicitTLS := security == "ssl" || security == "tls" || (security == "" && port == 465)
	switch {
	case implicitTLS:
		tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		opts = append(opts,
			gomail.WithSSL(),
			gomail.WithTLSConfig(tlsConfig),
			gomail.WithDialContextFunc(openDialer(timeouts.Open, tlsConfig)),
		)
	case security == "noverify":
		opts = append(opts,
			gomail.WithTLSPolicy(gomail.TLSOpportunistic),
			gomail.WithTLSConfig(&tls.Config{ServerName: host, InsecureSkipVerify: true}), //nolint:gosec // requested by the account
		)
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if !implicitTLS {
		opts = append(opts, gomail.WithDialContextFunc(openDialer(timeouts.Open, nil)))
	}

	if s.Password != "" {
		authType, err := smtpAuthType(s.Authentication)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			gomail.WithSMTPAuth(authType),
			gomail.WithUsername(s.Username),
			gomail.WithPassword(s.Password),
		)
	}

	return &SMTPTransport{host: host, port: port, opts: opts, timeouts: timeouts}, nil
}

// openDialer bounds connection setup, including the implicit TLS handshake,
// by the open timeout. The client timeout then applies to each command.
func openDialer(open time.Duration, tlsConfig *tls.Config) gomail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		nd := &net.Dialer{Timeout: open}
		if tlsConfig == nil {
			return nd.DialContext(ctx, network, address)
		}
		td := &tls.Dialer{NetDialer: nd, Config: tlsConfig}
		return td.DialContext(ctx, network, address)
	}
}

func smtpAuthType(name string) (gomail.SMTPAuthType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "plain":
		return gomail.SMTPAuthPlain, nil
	case "login":
		return gomail.SMTPAuthLogin, nil
	case "cram_md5":
		return gomail.SMTPAuthCramMD5, nil
	default:
		return "", fmt.Errorf("unsupported smtp authentication %q", name)
	}
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Addr is host:port of the relay.
func (t *SMTPTransport) Addr() string {
	return fmt.Sprintf("%s:%d", t.host, t.port)
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(t.host, t.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeouts.Open+t.timeouts.Read)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send via %s: %w", t.Addr(), err)
	}
	return nil
}

func buildMsg(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.PlainBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	}
	return m, nil
}
