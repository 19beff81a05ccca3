package config

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

var configEnvKeys = []string{
	"APP_ENV", "DATABASE_URL", "DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT", "DB_SSL_MODE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "QUEUE_NAMESPACE",
	"REMINDER_INTERVAL", "REMINDER_INITIAL_DELAY", "REMINDER_BATCH_SIZE", "REMINDER_WATCH_INTERVAL",
	"WORKER_CONCURRENCY", "QUEUE_POLL_INTERVAL", "MAIL_RATE_PER_SEC",
	"SENDGRID_API_KEY", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_SECURITY",
	"SMTP_DOMAIN", "MAIL_FROM", "MAIL_FROM_NAME", "SMTP_OPEN_TIMEOUT", "SMTP_READ_TIMEOUT",
	"HTTP_ADDR", "CORS_ALLOWED_ORIGINS", "ADMIN_TOKEN", "LOG_LEVEL", "LOG_FORMAT",
	"ENCRYPTION_KEY", "APP_BASE_URL", "SENTRY_DSN",
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.IsProduction() {
		t.Fatalf("expected development profile")
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected 1m interval in development, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.InitialDelay != time.Minute {
		t.Fatalf("expected 1m initial delay, got %s", cfg.Scheduler.InitialDelay)
	}
	if cfg.Scheduler.BatchSize != 1000 {
		t.Fatalf("expected batch size 1000, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Mail.OpenTimeout != 15*time.Second || cfg.Mail.ReadTimeout != 25*time.Second {
		t.Fatalf("unexpected mail timeouts: %s/%s", cfg.Mail.OpenTimeout, cfg.Mail.ReadTimeout)
	}
	if cfg.Redis.Namespace != "docremind" {
		t.Fatalf("unexpected namespace %q", cfg.Redis.Namespace)
	}
}

func TestLoad_ProductionUsesHourlyInterval(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production profile")
	}
	if cfg.Scheduler.Interval != time.Hour {
		t.Fatalf("expected 1h interval in production, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Database.DSN != "postgres://u:p@db:5432/app" {
		t.Fatalf("unexpected DSN %q", cfg.Database.DSN)
	}
}

func TestLoad_IntervalOverride(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("REMINDER_INTERVAL", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", cfg.Scheduler.Interval)
	}
}

func TestLoad_AssemblesDSNFromParts(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "docs")
	t.Setenv("DB_PORT", "5432")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := "host=localhost user=app password=secret dbname=docs port=5432 sslmode=disable TimeZone=UTC connect_timeout=10"
	if cfg.Database.DSN != want {
		t.Fatalf("DSN = %q, want %q", cfg.Database.DSN, want)
	}
}

func TestLoad_ParsesLists(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("MAIL_FROM", "a@example.com, b@example.com,,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Mail.From) != 2 || cfg.Mail.From[1] != "b@example.com" {
		t.Fatalf("unexpected from list %#v", cfg.Mail.From)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 {
		t.Fatalf("unexpected origins %#v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing encryption key",
			env:     map[string]string{"DATABASE_URL": "postgres://localhost/db"},
			wantErr: "ENCRYPTION_KEY",
		},
		{
			name:    "short encryption key",
			env:     map[string]string{"DATABASE_URL": "postgres://localhost/db", "ENCRYPTION_KEY": "short"},
			wantErr: "exactly 32 bytes",
		},
		{
			name:    "missing database url in production",
			env:     map[string]string{"APP_ENV": "production", "ENCRYPTION_KEY": testKey},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"DATABASE_URL": "postgres://localhost/db", "ENCRYPTION_KEY": testKey, "REMINDER_INTERVAL": "soon"},
			wantErr: "REMINDER_INTERVAL",
		},
		{
			name:    "non positive batch",
			env:     map[string]string{"DATABASE_URL": "postgres://localhost/db", "ENCRYPTION_KEY": testKey, "REMINDER_BATCH_SIZE": "0"},
			wantErr: "REMINDER_BATCH_SIZE",
		},
		{
			name:    "negative watch interval",
			env:     map[string]string{"DATABASE_URL": "postgres://localhost/db", "ENCRYPTION_KEY": testKey, "REMINDER_WATCH_INTERVAL": "-1m"},
			wantErr: "REMINDER_WATCH_INTERVAL",
		},
		{
			name:    "unknown profile",
			env:     map[string]string{"APP_ENV": "staging", "DATABASE_URL": "postgres://localhost/db", "ENCRYPTION_KEY": testKey},
			wantErr: "unknown profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err == nil {
				t.Fatalf("expected error, got config %#v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
