package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for admission decisions.
type Metrics struct {
	// Decisions by channel and outcome
	Decisions *prometheus.CounterVec

	// Credential failures by cause: unparseable, unknown_member, tampered
	CredentialFailures *prometheus.CounterVec

	// Full decision latency including persistence
	DecisionLatency *prometheus.HistogramVec
}

// New registers the access metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubgate_access_decisions_total",
			Help: "Total admission decisions by channel and outcome",
		}, []string{"channel", "outcome"}),

		CredentialFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubgate_access_credential_failures_total",
			Help: "Total QR credentials refused before the admission policy ran",
		}, []string{"cause"}),

		DecisionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubgate_access_decision_duration_seconds",
			Help:    "Duration of an admission decision including record persistence",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"channel"}),
	}
}

func (m *Metrics) IncDecision(channel, outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(channel, outcome).Inc()
	}
}

func (m *Metrics) IncCredentialFailure(cause string) {
	if m != nil {
		m.CredentialFailures.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) ObserveDecision(channel string, d time.Duration) {
	if m != nil {
		m.DecisionLatency.WithLabelValues(channel).Observe(d.Seconds())
	}
}
