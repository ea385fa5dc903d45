package dispatch

import "github.com/prometheus/client_golang/prometheus"

// dispatchMetrics holds metrics related to query fan-out.
type dispatchMetrics struct {
	dispatches   *prometheus.CounterVec
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	inflight     prometheus.Gauge
}

func newDispatchMetrics() *dispatchMetrics {
	const (
		namespace = "multiquery"
		subsystem = "dispatch"
	)

	return &dispatchMetrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatches_total",
			Help:      "Number of dispatches by mode and outcome (success, partial, failed, rejected)",
		}, []string{"mode", "outcome"}),

		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "environment_calls_total",
			Help:      "Number of executor calls by environment and result",
		}, []string{"environment", "result"}),

		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "environment_call_duration_seconds",
			Help:      "Histogram of executor call durations per environment",
			Buckets:   prometheus.ExponentialBuckets(1e-2, 4, 8),
		}, []string{"environment"}),

		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inflight_calls",
			Help:      "Number of executor calls currently awaited",
		}),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *dispatchMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.dispatches,
		m.calls,
		m.callDuration,
		m.inflight,
	}
}
