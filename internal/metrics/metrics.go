package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded in aquaproc_runs_total.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeLaunchError = "launch_error"
	OutcomeTimeout     = "timeout"
	OutcomeDismissed   = "dismissed"
)

// Metrics holds the collectors for container runs and jobs. Each Metrics
// owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	submitted *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquaproc_runs_total",
			Help: "Container runs by process and outcome.",
		}, []string{"process", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aquaproc_run_duration_seconds",
			Help:    "Wall time of container runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"process"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aquaproc_jobs_in_flight",
			Help: "Jobs currently holding an execution slot.",
		}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquaproc_jobs_submitted_total",
			Help: "Accepted job submissions by process and mode (sync or async).",
		}, []string{"process", "mode"}),
	}
	m.registry.MustRegister(
		m.runs, m.duration, m.inFlight, m.submitted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished container run. A nil Metrics is a no-op.
func (m *Metrics) ObserveRun(process, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(process, outcome).Inc()
	if d > 0 {
		m.duration.WithLabelValues(process).Observe(d.Seconds())
	}
}

// JobSubmitted counts an accepted submission.
func (m *Metrics) JobSubmitted(process string, async bool) {
	if m == nil {
		return
	}
	mode := "sync"
	if async {
		mode = "async"
	}
	m.submitted.WithLabelValues(process, mode).Inc()
}

// JobStarted and JobFinished bracket the time a job holds a slot.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
