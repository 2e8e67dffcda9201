package trip

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/WessleyAI/wessley-trips/pkg/resilience"
)

type metrics struct {
	ops          *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	positions    prometheus.Counter
	completed    prometheus.Counter
	tripLength   prometheus.Histogram
	breakerState prometheus.Gauge
	publishFails *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trips",
			Name:      "operations_total",
			Help:      "Lifecycle operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trips",
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		positions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "trips",
			Name:      "positions_recorded_total",
			Help:      "Positions appended to trip chains.",
		}),
		completed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "trips",
			Name:      "completed_total",
			Help:      "Trips stopped successfully.",
		}),
		tripLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trips",
			Name:      "length_km",
			Help:      "Straight-line length of completed trips.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "trips",
			Name:      "store_breaker_state",
			Help:      "Store circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
		publishFails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trips",
			Name:      "event_publish_failures_total",
			Help:      "Lifecycle events that could not be published.",
		}, []string{"kind"}),
	}
}

func (m *metrics) onBreakerChange(_, to resilience.State) {
	m.breakerState.Set(float64(to))
}
