// Package metrics exposes Prometheus instruments for the reminder pipeline.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docremind"

// Metrics groups every instrument so tests can use a private registry.
type Metrics struct {
	Ticks             prometheus.Counter
	TickDuration      prometheus.Histogram
	AccountFailures   prometheus.Counter
	AccountsSkipped   prometheus.Counter
	Evaluated         prometheus.Counter
	Dispatched        *prometheus.CounterVec
	Sent              *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	DeliveriesSkipped *prometheus.CounterVec
	TasksProcessed    *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Number of reminder scheduling passes.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of reminder scheduling passes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		AccountFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_account_failures_total",
			Help:      "Accounts whose reminder evaluation failed.",
		}),
		AccountsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_accounts_skipped_total",
			Help:      "Accounts skipped because no reminder is configured.",
		}),
		Evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_submitters_evaluated_total",
			Help:      "Submitters evaluated for reminders.",
		}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminders handed to the delivery queue.",
		}, []string{"number"}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders delivered and recorded in the ledger.",
		}, []string{"number"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Reminder deliveries that failed.",
		}, []string{"reason"}),
		DeliveriesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_deliveries_skipped_total",
			Help:      "Reminder deliveries skipped after re-validation.",
		}, []string{"reason"}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_tasks_processed_total",
			Help:      "Queue tasks processed by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Ticks, m.TickDuration, m.AccountFailures, m.AccountsSkipped, m.Evaluated,
			m.Dispatched, m.Sent, m.DeliveryFailures, m.DeliveriesSkipped, m.TasksProcessed,
		)
	}
	return m
}

// Number formats an escalation number as a label value.
func Number(n int) string {
	return strconv.Itoa(n)
}
