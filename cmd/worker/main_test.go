package main

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docremind/internal/config"
	"docremind/internal/mailer"
)

func TestNewDefaultTransport(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Profile: config.ProfileDevelopment,
			Mail: config.MailConfig{
				OpenTimeout: 15 * time.Second,
				ReadTimeout: 25 * time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		want    string
		wantErr error
	}{
		{"sendgrid wins", func(c *config.Config) {
			c.Mail.SendGridAPIKey = "SG.key"
			c.Mail.SMTP.Host = "smtp.example.com"
		}, "sendgrid", nil},
		{"process smtp", func(c *config.Config) {
			c.Mail.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: 587}
		}, "smtp", nil},
		{"log in development", func(c *config.Config) {}, "log", nil},
		{"nothing in production", func(c *config.Config) { c.Profile = config.ProfileProduction }, "", mailer.ErrNoTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			tr, err := newDefaultTransport(cfg, zerolog.Nop())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("newDefaultTransport: %v", err)
			}
			if tr.Name() != tt.want {
				t.Fatalf("transport = %q, want %q", tr.Name(), tt.want)
			}
		})
	}
}
