package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptaat_webhook_events_total",
			Help: "Total number of webhook events received, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	SubscriptionSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptaat_subscription_syncs_total",
			Help: "Total number of subscription rows written from provider state",
		},
		[]string{"action"},
	)

	ResolutionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptaat_user_resolution_failures_total",
			Help: "Total number of provider subscriptions whose owner could not be resolved",
		},
	)

	SweepDriftTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptaat_sweep_drift_total",
			Help: "Drift found by the reconciliation sweep, by category",
		},
		[]string{"category"},
	)
)

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordSync(action string) {
	SubscriptionSyncsTotal.WithLabelValues(action).Inc()
}

func RecordResolutionFailure() {
	ResolutionFailuresTotal.Inc()
}

func RecordSweepDrift(category string) {
	SweepDriftTotal.WithLabelValues(category).Inc()
}
