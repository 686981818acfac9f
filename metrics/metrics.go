package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts workflow runs and step attempts. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	taskAttempts *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backfill",
			Name:      "runs_total",
			Help:      "Workflow runs by final state.",
		}, []string{"dag_id", "state"}),
		taskAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backfill",
			Name:      "task_attempts_total",
			Help:      "Step attempts by outcome.",
		}, []string{"dag_id", "task_id", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "backfill",
			Name:      "run_duration_seconds",
			Help:      "Wall time from run start to its final state.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
	}
	m.registry.MustRegister(m.runs, m.taskAttempts, m.runDuration)
	return m
}

func (m *Metrics) RunFinished(dagID, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(dagID, state).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) TaskAttempt(dagID, taskID, outcome string) {
	if m == nil {
		return
	}
	m.taskAttempts.WithLabelValues(dagID, taskID, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
