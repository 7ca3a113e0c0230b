package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookEventsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_webhook_events_total",
			Help: "Number of payment webhook events received",
		},
	)

	WebhookEventsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhook_events_rejected_total",
			Help: "Number of payment webhook events rejected before processing",
		},
		[]string{"reason"},
	)

	SagaStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_step_failures_total",
			Help: "Number of non-fatal fulfillment step failures",
		},
		[]string{"step"},
	)

	EnrollmentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_outcomes_total",
			Help: "Number of terminal enrollment outcomes recorded",
		},
		[]string{"outcome"},
	)

	EnrollmentRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollment_retries_total",
			Help: "Number of rate-limited enrollment attempts that were retried",
		},
	)

	ProgressAggregations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_aggregations_total",
			Help: "Number of watched-time aggregations computed",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		WebhookEventsReceived,
		WebhookEventsRejected,
		SagaStepFailures,
		EnrollmentOutcomes,
		EnrollmentRetries,
		ProgressAggregations,
	)
}
