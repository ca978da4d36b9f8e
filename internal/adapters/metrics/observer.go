// Package metrics exports batch and unit counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricsNamespace = "botfleet"
	MetricsSubsystem = "scheduler"
)

const (
	unitPerformed = "performed"
	unitFailed    = "failed"
	unitSkipped   = "skipped"
)

var _ ports.Observer = (*Observer)(nil)

// Observer turns scheduler events into Prometheus series.
type Observer struct {
	UnitsTotal         *prometheus.CounterVec
	UnitFailuresTotal  *prometheus.CounterVec
	BatchesFinished    *prometheus.CounterVec
	BatchRetryAttempts prometheus.Histogram
	BatchFailedUnits   prometheus.Histogram
	LastIteration      *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewObserver registers every series on reg. A nil reg creates a private
// registry so that several observers can coexist in tests.
func NewObserver(reg *prometheus.Registry) *Observer {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	o := &Observer{gatherer: reg}

	o.UnitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "units_total",
			Help:      "Scheduler ticks by interaction kind and result",
		},
		[]string{"kind", "result"},
	)
	o.UnitFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "unit_failures_total",
			Help:      "Failed units by cause",
		},
		[]string{"cause"},
	)
	o.BatchesFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "batches_finished_total",
			Help:      "Finished batches by kind and final status",
		},
		[]string{"kind", "status"},
	)
	o.BatchRetryAttempts = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_retry_attempts",
			Help:      "Retry passes used by finished batches",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
	)
	o.BatchFailedUnits = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_failed_units",
			Help:      "Units still failed when a batch finished",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		},
	)
	o.LastIteration = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_iteration",
			Help:      "Last iteration ticked per target",
		},
		[]string{"target"},
	)

	return o
}

func (o *Observer) OnTick(snapshot domain.BatchSnapshot, tick ports.Tick) {
	kind := snapshot.Kind.String()
	o.LastIteration.WithLabelValues(snapshot.Target.ID).Set(float64(tick.Iteration))

	switch {
	case !tick.Performed:
		o.UnitsTotal.WithLabelValues(kind, unitSkipped).Inc()
	case tick.Cause != "":
		o.UnitsTotal.WithLabelValues(kind, unitFailed).Inc()
		o.UnitFailuresTotal.WithLabelValues(string(tick.Cause)).Inc()
	default:
		o.UnitsTotal.WithLabelValues(kind, unitPerformed).Inc()
	}
}

func (o *Observer) OnFinish(outcome domain.Outcome) {
	o.BatchesFinished.WithLabelValues(outcome.Kind.String(), string(outcome.Status)).Inc()
	o.BatchRetryAttempts.Observe(float64(outcome.RetryAttempts))
	o.BatchFailedUnits.Observe(float64(outcome.Failed))
	o.LastIteration.DeleteLabelValues(outcome.Target.ID)
}

// Handler serves the registry the observer was built on.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})
}
