package supervisor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the supervisor's Prometheus instrumentation. A nil *Metrics
// is valid and records nothing, so metrics stay optional in tests and
// embedded use.
type Metrics struct {
	turns            *prometheus.CounterVec
	steps            prometheus.Counter
	executorRuns     *prometheus.CounterVec
	executorDuration *prometheus.HistogramVec
	decisions        *prometheus.CounterVec
	staleWrites      prometheus.Counter
	repeatGuardTrips prometheus.Counter
}

// NewMetrics registers the supervisor metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drover",
			Name:      "turns_total",
			Help:      "Completed turns by terminal outcome.",
		}, []string{"outcome"}),
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drover",
			Name:      "steps_total",
			Help:      "Committed steps across all conversations.",
		}),
		executorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drover",
			Name:      "executor_runs_total",
			Help:      "Executor runs by executor and result status.",
		}, []string{"executor", "status"}),
		executorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drover",
			Name:      "executor_duration_seconds",
			Help:      "Wall time of executor runs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"executor"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drover",
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by chosen actor.",
		}, []string{"actor"}),
		staleWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drover",
			Name:      "stale_writes_total",
			Help:      "Commits that lost the step counter race and were retried.",
		}),
		repeatGuardTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drover",
			Name:      "repeat_guard_trips_total",
			Help:      "Turns forced to clarification by the repeat bound.",
		}),
	}
}

func (m *Metrics) turnFinished(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) stepCommitted() {
	if m == nil {
		return
	}
	m.steps.Inc()
}

func (m *Metrics) executorRan(executor, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executorRuns.WithLabelValues(executor, status).Inc()
	m.executorDuration.WithLabelValues(executor).Observe(elapsed.Seconds())
}

func (m *Metrics) decisionMade(actor string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(actor).Inc()
}

func (m *Metrics) staleWrite() {
	if m == nil {
		return
	}
	m.staleWrites.Inc()
}

func (m *Metrics) repeatGuardTripped() {
	if m == nil {
		return
	}
	m.repeatGuardTrips.Inc()
}
