package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Appended        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	SinkFailures    prometheus.Counter
	BreakerState    prometheus.Gauge
}

// NewMetrics registers the audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubgate_audit_events_appended_total",
			Help: "Total number of audit events persisted, by kind and severity",
		}, []string{"kind", "severity"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "clubgate_audit_persist_failures_total",
			Help: "Total number of audit events that could not be persisted",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "clubgate_audit_sink_failures_total",
			Help: "Total number of audit events that could not be mirrored to a sink",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "clubgate_audit_circuit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncAppended(kind, severity string) {
	if m == nil {
		return
	}
	m.Appended.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) IncSinkFailures() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

func (m *Metrics) SetBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
