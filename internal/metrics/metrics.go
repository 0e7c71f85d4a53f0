// Package metrics holds the Prometheus indicators of the staking console.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stakeboard"

// Submission outcomes.
const (
	OutcomeDispatched = "dispatched"
	OutcomeFailed     = "failed"
)

type Indicators struct {
	submissionsTotal        *prometheus.CounterVec
	validationFailuresTotal *prometheus.CounterVec
	busy                    prometheus.Gauge
	refreshSeconds          prometheus.Histogram
	snapshotErrorsTotal     *prometheus.CounterVec
}

func NewIndicators(reg prometheus.Registerer) *Indicators {
	return &Indicators{
		submissionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Contract writes dispatched, by action and synchronous outcome",
			},
			[]string{"action", "outcome"},
		),
		validationFailuresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Intents rejected by local validation before dispatch",
			},
			[]string{"action"},
		),
		busy: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "busy",
				Help:      "1 while a submission is being dispatched",
			},
		),
		refreshSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_refresh_seconds",
				Help:      "Duration of a full snapshot refresh in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
		),
		snapshotErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_errors_total",
				Help:      "Failed snapshot queries by query name",
			},
			[]string{"query"},
		),
	}
}

// AddSubmission counts a dispatch attempt.
func (i *Indicators) AddSubmission(action, outcome string) {
	i.submissionsTotal.WithLabelValues(action, outcome).Inc()
}

// AddValidationFailure counts an intent rejected for an invalid amount.
func (i *Indicators) AddValidationFailure(action string) {
	i.validationFailuresTotal.WithLabelValues(action).Inc()
}

// SetBusy mirrors the view-model busy flag.
func (i *Indicators) SetBusy(busy bool) {
	if busy {
		i.busy.Set(1)
		return
	}
	i.busy.Set(0)
}

// ObserveRefresh records how long a snapshot refresh took.
func (i *Indicators) ObserveRefresh(d time.Duration) {
	i.refreshSeconds.Observe(d.Seconds())
}

// SnapshotError counts a failed snapshot query.
func (i *Indicators) SnapshotError(query string) {
	i.snapshotErrorsTotal.WithLabelValues(query).Inc()
}
