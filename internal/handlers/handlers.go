package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"docremind/internal/auth"
	"docremind/internal/models"
	"docremind/internal/queue"
	"docremind/internal/utils"
)

// ReminderTester sends a reminder through the delivery path without touching the ledger.
type ReminderTester interface {
	SendTest(ctx context.Context, accountID uint, email string) error
}

// SMTPTester sends a message through an account's own SMTP settings.
type SMTPTester interface {
	SendSMTPTest(ctx context.Context, account models.Account, to string) error
}

// QueueInspector reports the task queue sizes.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type AccountFinder interface {
	FindAccount(ctx context.Context, id uint) (*models.Account, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the admin HTTP surface.
type Handler struct {
	accounts  AccountFinder
	reminders ReminderTester
	smtp      SMTPTester
	queue     QueueInspector
	checks    map[string]HealthCheck
	log       zerolog.Logger
}

func New(
	accounts AccountFinder,
	reminders ReminderTester,
	smtp SMTPTester,
	q QueueInspector,
	checks map[string]HealthCheck,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		accounts:  accounts,
		reminders: reminders,
		smtp:      smtp,
		queue:     q,
		checks:    checks,
		log:       log,
	}
}

type RouterConfig struct {
	AllowedOrigins []string
	AdminToken     string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter wires the routes and middleware.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log))

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Admin routes (token required when configured)
	admin := router.Group("")
	admin.Use(auth.BearerToken(cfg.AdminToken))
	{
		admin.POST("/accounts/:id/reminders/test", h.SendTestReminder)
		admin.POST("/accounts/:id/smtp/test", h.SendTestSMTP)
		admin.GET("/queue", h.QueueStats)
	}

	return router
}

// handleError provides a consistent way to handle and log errors
func (h *Handler) handleError(c *gin.Context, status int, message string, err error) {
	ev := h.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).Str("path", c.FullPath()).Int("status", status).Msg(message)

	body := gin.H{"error": message}
	if status == http.StatusBadGateway && err != nil {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

// Health checks every registered dependency.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}

// QueueStats returns the scheduled, ready and in-flight task counts.
func (h *Handler) QueueStats(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "queue not available"})
		return
	}
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.handleError(c, http.StatusServiceUnavailable, "failed to read queue stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client_ip", utils.ClientIP(c)).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
