package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for workflow execution.
//
// Metrics exposed (all namespaced with "convoflow_"):
//
// 1. runs_total (counter): Completed workflow runs.
// Labels: outcome (completed, failed, skipped).
//
// 2. steps_total (counter): Individual step executions.
// Labels: step, status (success, error).
//
// 3. step_latency_ms (histogram): Step execution duration in milliseconds.
// Labels: step, status.
// Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000].
//
// 4. inflight_runs (gauge): Runs currently executing.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewMetrics(registry)
//	engine := New(reg, flows, WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods delegate to Prometheus collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepLatency *prometheus.HistogramVec
	inflight    prometheus.Gauge
}

// Run outcome and step status label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"

	StatusSuccess = "success"
	StatusError   = "error"
)

// NewMetrics creates and registers all workflow execution metrics with the
// provided Prometheus registry. A nil registry falls back to the global
// default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convoflow",
			Name:      "runs_total",
			Help:      "Completed workflow runs by outcome",
		}, []string{"outcome"}),

		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convoflow",
			Name:      "steps_total",
			Help:      "Individual step executions by step name and status",
		}, []string{"step", "status"}),

		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "convoflow",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"step", "status"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "convoflow",
			Name:      "inflight_runs",
			Help:      "Workflow runs currently executing",
		}),
	}
}

// RecordRun records a finished run with its outcome.
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// RecordStep records a single step execution with its duration and status.
func (m *Metrics) RecordStep(step StepID, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(step), status).Inc()
	m.stepLatency.WithLabelValues(string(step), status).Observe(float64(latency.Milliseconds()))
}

// RunStarted increments the inflight gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// RunEnded decrements the inflight gauge.
func (m *Metrics) RunEnded() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
