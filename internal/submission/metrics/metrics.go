package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the submission module.
type Metrics struct {
	// Submissions created, by form type and derived priority
	Created *prometheus.CounterVec

	// Applied status changes
	Transitions *prometheus.CounterVec

	// Status changes refused by the transition table
	IllegalTransitions *prometheus.CounterVec

	// Work-queue query latency (list + statistics)
	WorkQueueLatency prometheus.Histogram
}

// New registers the submission metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancelab_submission_created_total",
			Help: "Total submissions created by csf type and priority",
		}, []string{"csf_type", "priority"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancelab_submission_status_transitions_total",
			Help: "Total applied status changes",
		}, []string{"from", "to"}),

		IllegalTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancelab_submission_illegal_transitions_total",
			Help: "Status changes refused by the transition table",
		}, []string{"from", "to"}),

		WorkQueueLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliancelab_submission_work_queue_duration_seconds",
			Help:    "Duration of work-queue queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

func (m *Metrics) IncrementCreated(csfType, priority string) {
	if m != nil {
		m.Created.WithLabelValues(csfType, priority).Inc()
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) IncrementIllegalTransition(from, to string) {
	if m != nil {
		m.IllegalTransitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) ObserveWorkQueueLatency(d time.Duration) {
	if m != nil {
		m.WorkQueueLatency.Observe(d.Seconds())
	}
}
