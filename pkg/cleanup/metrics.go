package cleanup

import "github.com/prometheus/client_golang/prometheus"

// Metrics provides Prometheus instrumentation for the cleanup queue.
type Metrics struct {
	queueDepth   prometheus.Gauge
	drainedTotal prometheus.Counter
	syncFallback prometheus.Counter
}

// NewMetrics creates cleanup worker metrics. If registry is nil, metrics
// are created but not registered (useful in tests).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "txnfsal",
			Subsystem: "cleanup",
			Name:      "queue_depth",
			Help:      "Number of backup directories awaiting asynchronous deletion",
		}),
		drainedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnfsal",
			Subsystem: "cleanup",
			Name:      "drained_total",
			Help:      "Total number of backup directories deleted by the background worker",
		}),
		syncFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnfsal",
			Subsystem: "cleanup",
			Name:      "sync_fallback_total",
			Help:      "Total number of backup deletes that fell back to the caller's goroutine",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.queueDepth, m.drainedTotal, m.syncFallback)
	}
	return m
}
