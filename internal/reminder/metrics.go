package reminder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logzito"

var (
	passesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "passes_total",
			Help:      "Evaluation passes by result",
		},
		[]string{"result"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	deactivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "deactivations_total",
			Help:      "Subscriptions deactivated after a permanent delivery failure",
		},
	)

	evaluationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "evaluation_errors_total",
			Help:      "Subscriptions skipped because their schedule could not be evaluated",
		},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "pass_duration_seconds",
			Help:      "Time to evaluate and deliver one pass",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

func recordPass(result string, d time.Duration) {
	passesTotal.WithLabelValues(result).Inc()
	passDuration.Observe(d.Seconds())
}

func recordDelivery(o Outcome) {
	deliveriesTotal.WithLabelValues(o.String()).Inc()
}
