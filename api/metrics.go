package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/rent-ledger/rent"
)

// =============================================================================
// METRICS - Prometheus counters for payments and backend throttling
// =============================================================================

// Metrics owns its registry so several servers (and tests) do not collide.
type Metrics struct {
	registry *prometheus.Registry

	payments      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	periods       prometheus.Counter
	batchDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "payments",
			Name:      "total",
			Help:      "Payments processed, by outcome.",
		}, []string{"outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Backoff sleeps after a rate-limited backend call, by operation.",
		}, []string{"op"}),
		periods: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "ledger",
			Name:      "prefilled_periods_total",
			Help:      "Future periods created from prepayments.",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rentledger",
			Subsystem: "payments",
			Name:      "batch_seconds",
			Help:      "Time to apply one batch of payments.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRetry matches generic.Retrier.OnRetry.
func (m *Metrics) ObserveRetry(op string, attempt int, delay time.Duration) {
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveBatch(outcomes []rent.Outcome, elapsed time.Duration) {
	for _, o := range outcomes {
		m.payments.WithLabelValues(outcomeLabel(o.Err)).Inc()
		if o.Err == nil {
			m.periods.Add(float64(o.Result.AutoCreatedFuturePeriods))
		}
	}
	m.batchDuration.Observe(elapsed.Seconds())
}
