package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the consumer's operational counters, exposed on /metrics.
type Metrics struct {
	EventsProcessed    *prometheus.CounterVec
	EventsRetried      prometheus.Counter
	EventsDeadLettered prometheus.Counter

	NotificationsCreated prometheus.Counter
	NotificationsDeduped prometheus.Counter
	RecipientsSkipped    prometheus.Counter
	EmailFailures        prometheus.Counter
}

// NewMetrics registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ja_notification_events_processed_total",
			Help: "Events consumed from the log, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		EventsRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "ja_notification_events_retried_total",
			Help: "Handler retries after a failed attempt.",
		}),
		EventsDeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ja_notification_events_dead_lettered_total",
			Help: "Events moved to the dead-letter stream after exhausting retries.",
		}),
		NotificationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ja_notification_notifications_created_total",
			Help: "Notification records created.",
		}),
		NotificationsDeduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ja_notification_notifications_deduplicated_total",
			Help: "Notification creations skipped by the idempotency key.",
		}),
		RecipientsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ja_notification_recipients_skipped_total",
			Help: "Recipients skipped because identity lookup did not resolve.",
		}),
		EmailFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ja_notification_email_failures_total",
			Help: "Email sends recorded as FAILED deliveries.",
		}),
	}
}
