package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Profiles
const (
	ProfileDevelopment = "development"
	ProfileProduction  = "production"
)

// Config is built once at startup and handed to the components that need it.
type Config struct {
	Profile   string
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	Mail      MailConfig
	HTTP      HTTPConfig
	Log       LogConfig

	EncryptionKey string
	BaseURL       string
	SentryDSN     string
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Namespace string
}

type SchedulerConfig struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	BatchSize     int
	WatchInterval time.Duration
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	RatePerSec   float64
}

type MailConfig struct {
	SendGridAPIKey string
	SMTP           SMTPConfig
	From           []string
	FromName       string
	OpenTimeout    time.Duration
	ReadTimeout    time.Duration
}

// SMTPConfig is the process default SMTP transport. Host is empty when not configured.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string
	Domain   string
}

type HTTPConfig struct {
	Address        string
	AllowedOrigins []string

	// AdminToken protects the /accounts routes; empty leaves them open.
	AdminToken string
}

type LogConfig struct {
	Level  string
	Format string
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Profile == ProfileProduction
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var errs []error
	e := &envReader{errs: &errs}

	profile := strings.ToLower(e.str("APP_ENV", ProfileDevelopment))
	if profile != ProfileDevelopment && profile != ProfileProduction {
		errs = append(errs, fmt.Errorf("APP_ENV: unknown profile %q", profile))
	}

	// Short ticks in development so short reminder durations can be exercised.
	defaultInterval := time.Minute
	if profile == ProfileProduction {
		defaultInterval = time.Hour
	}

	cfg := &Config{
		Profile: profile,
		Database: DatabaseConfig{
			DSN: databaseDSN(e, profile),
		},
		Redis: RedisConfig{
			Address:   e.str("REDIS_ADDR", "localhost:6379"),
			Password:  e.str("REDIS_PASSWORD", ""),
			DB:        e.int("REDIS_DB", 0),
			Namespace: e.str("QUEUE_NAMESPACE", "docremind"),
		},
		Scheduler: SchedulerConfig{
			Interval:      e.duration("REMINDER_INTERVAL", defaultInterval),
			InitialDelay:  e.duration("REMINDER_INITIAL_DELAY", time.Minute),
			BatchSize:     e.int("REMINDER_BATCH_SIZE", 1000),
			WatchInterval: e.duration("REMINDER_WATCH_INTERVAL", 0),
		},
		Worker: WorkerConfig{
			Concurrency:  e.int("WORKER_CONCURRENCY", 5),
			PollInterval: e.duration("QUEUE_POLL_INTERVAL", time.Second),
			RatePerSec:   e.float("MAIL_RATE_PER_SEC", 10),
		},
		Mail: MailConfig{
			SendGridAPIKey: e.str("SENDGRID_API_KEY", ""),
			SMTP: SMTPConfig{
				Host:     e.str("SMTP_HOST", ""),
				Port:     e.int("SMTP_PORT", 587),
				Username: e.str("SMTP_USERNAME", ""),
				Password: e.str("SMTP_PASSWORD", ""),
				Security: e.str("SMTP_SECURITY", ""),
				Domain:   e.str("SMTP_DOMAIN", ""),
			},
			From:        e.list("MAIL_FROM"),
			FromName:    e.str("MAIL_FROM_NAME", "DocRemind"),
			OpenTimeout: e.duration("SMTP_OPEN_TIMEOUT", 15*time.Second),
			ReadTimeout: e.duration("SMTP_READ_TIMEOUT", 25*time.Second),
		},
		HTTP: HTTPConfig{
			Address:        e.str("HTTP_ADDR", ":8080"),
			AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS"),
			AdminToken:     e.str("ADMIN_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
		EncryptionKey: e.required("ENCRYPTION_KEY"),
		BaseURL:       strings.TrimRight(e.str("APP_BASE_URL", "http://localhost:3000"), "/"),
		SentryDSN:     e.str("SENTRY_DSN", ""),
	}

	errs = append(errs, validate(cfg)...)
	if len(errs) > 0 {
		return nil, joinErrors(errs)
	}
	return cfg, nil
}

func databaseDSN(e *envReader, profile string) string {
	// Hosted deployments hand over a single URL.
	if profile == ProfileProduction {
		return e.required("DATABASE_URL")
	}
	if url := e.str("DATABASE_URL", ""); url != "" {
		return url
	}

	host := e.required("DB_HOST")
	user := e.required("DB_USER")
	password := e.required("DB_PASSWORD")
	dbname := e.required("DB_NAME")
	port := e.required("DB_PORT")
	sslMode := e.str("DB_SSL_MODE", "disable")

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		host, user, password, dbname, port, sslMode)
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("REMINDER_INTERVAL must be > 0"))
	}
	if cfg.Scheduler.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("REMINDER_INITIAL_DELAY must be >= 0"))
	}
	if cfg.Scheduler.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("REMINDER_WATCH_INTERVAL must be >= 0"))
	}
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("REMINDER_BATCH_SIZE must be > 0"))
	}
	if cfg.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be > 0"))
	}
	if cfg.Worker.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_POLL_INTERVAL must be > 0"))
	}
	if cfg.Worker.RatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("MAIL_RATE_PER_SEC must be > 0"))
	}
	if cfg.Mail.OpenTimeout <= 0 || cfg.Mail.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SMTP_OPEN_TIMEOUT and SMTP_READ_TIMEOUT must be > 0"))
	}
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes long for AES-256 encryption"))
	}
	return errs
}

type envReader struct {
	errs *[]error
}

func (e *envReader) fail(err error) {
	*e.errs = append(*e.errs, err)
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) required(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.fail(fmt.Errorf("required environment variable %s is not set", key))
	}
	return v
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid int for env %s: %q", key, v))
		return def
	}
	return i
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid number for env %s: %q", key, v))
		return def
	}
	return f
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid duration for env %s: %q", key, v))
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type configError []error

func (ce configError) Error() string {
	msgs := make([]string, 0, len(ce))
	for _, err := range ce {
		msgs = append(msgs, err.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

func (ce configError) Unwrap() []error { return ce }

func joinErrors(errs []error) error {
	return configError(errs)
}
