package lockmgr

import "github.com/prometheus/client_golang/prometheus"

// Status label values for lock acquisition outcomes, mirroring
// pkg/metadata/lock/metrics.go's granted/denied status constants.
const (
	StatusGranted = "granted"
	StatusDenied  = "denied"
)

// Metrics provides Prometheus instrumentation for the path lock table.
type Metrics struct {
	acquireTotal *prometheus.CounterVec
	activeGauge  prometheus.Gauge
}

// NewMetrics creates lock table metrics. If registry is nil, metrics are
// created but not registered (useful in tests).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "txnfsal",
				Subsystem: "locks",
				Name:      "acquire_total",
				Help:      "Total number of path lock batch acquire attempts",
			},
			[]string{LabelStatus},
		),
		activeGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "txnfsal",
				Subsystem: "locks",
				Name:      "active_paths",
				Help:      "Number of paths currently held in the lock table",
			},
		),
	}
	if registry != nil {
		registry.MustRegister(m.acquireTotal, m.activeGauge)
	}
	return m
}

// LabelStatus is the metric label key for acquisition outcome.
const LabelStatus = "status"

func (m *Metrics) observeAcquire(granted bool, activePaths int) {
	if m == nil {
		return
	}
	if granted {
		m.acquireTotal.WithLabelValues(StatusGranted).Inc()
	} else {
		m.acquireTotal.WithLabelValues(StatusDenied).Inc()
	}
	m.activeGauge.Set(float64(activePaths))
}
