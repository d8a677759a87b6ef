package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision module.
type Metrics struct {
	// Verdicts by expiry status and whether checkout was allowed
	Verdicts *prometheus.CounterVec

	// Blocking rules that fired, by rule id
	BlockingRules *prometheus.CounterVec

	// Evaluations rejected before a verdict was produced
	Rejected prometheus.Counter

	// Overall evaluation latency
	EvaluateLatency prometheus.Histogram
}

// New registers the decision metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancelab_decision_verdicts_total",
			Help: "Total verdicts by expiry status and checkout outcome",
		}, []string{"status", "allow_checkout"}),

		BlockingRules: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancelab_decision_blocking_rules_total",
			Help: "Total blocking rule hits by rule id",
		}, []string{"rule_id"}),

		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "compliancelab_decision_rejected_total",
			Help: "Evaluations that failed validation",
		}),

		EvaluateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliancelab_decision_evaluate_duration_seconds",
			Help:    "Duration of full decision evaluation including regulatory context",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncrementVerdict records a verdict outcome.
func (m *Metrics) IncrementVerdict(status string, allowCheckout bool) {
	if m != nil {
		allowed := "false"
		if allowCheckout {
			allowed = "true"
		}
		m.Verdicts.WithLabelValues(status, allowed).Inc()
	}
}

// IncrementBlockingRule records a blocking rule hit.
func (m *Metrics) IncrementBlockingRule(ruleID string) {
	if m != nil {
		m.BlockingRules.WithLabelValues(ruleID).Inc()
	}
}

// IncrementRejected records a failed evaluation.
func (m *Metrics) IncrementRejected() {
	if m != nil {
		m.Rejected.Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
