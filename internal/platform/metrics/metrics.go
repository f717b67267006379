// Package metrics exposes prometheus collectors for the pipeline. Each
// Metrics value owns its registry, so tests and multiple processes never
// collide on the global default registerer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "textproc"

// Worker outcomes recorded by ObserveProcessed.
const (
	OutcomeCompleted    = "completed"
	OutcomeNoop         = "noop"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
)

// Metrics groups the collectors of both processes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksAdmitted      *prometheus.CounterVec
	admissionFailures  *prometheus.CounterVec
	tasksProcessed     *prometheus.CounterVec
	processingDuration prometheus.Histogram
	outboxRelayed      *prometheus.CounterVec
}

// New creates and registers all collectors, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_admitted_total",
			Help:      "Tasks accepted for processing, by type.",
		}, []string{"type"}),
		admissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_failures_total",
			Help:      "Rejected or failed admissions, by reason.",
		}, []string{"reason"}),
		tasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Deliveries handled by the worker, by outcome.",
		}, []string{"outcome"}),
		processingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_processing_seconds",
			Help:      "Time spent cleaning, counting and detecting the language of one task.",
			Buckets:   prometheus.DefBuckets,
		}),
		outboxRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox messages republished by the relay, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksAdmitted,
		m.admissionFailures,
		m.tasksProcessed,
		m.processingDuration,
		m.outboxRelayed,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAdmitted counts an accepted task.
func (m *Metrics) ObserveAdmitted(taskType string) {
	if m == nil {
		return
	}
	m.tasksAdmitted.WithLabelValues(taskType).Inc()
}

// ObserveAdmissionFailure counts a rejected or failed admission.
func (m *Metrics) ObserveAdmissionFailure(reason string) {
	if m == nil {
		return
	}
	m.admissionFailures.WithLabelValues(reason).Inc()
}

// ObserveProcessed counts a handled delivery.
func (m *Metrics) ObserveProcessed(outcome string) {
	if m == nil {
		return
	}
	m.tasksProcessed.WithLabelValues(outcome).Inc()
}

// ObserveProcessingDuration records how long processing one task took.
func (m *Metrics) ObserveProcessingDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(d.Seconds())
}

// ObserveRelayed counts a relay publish attempt; result is "sent", "failed"
// or "requeued" for a stuck task put back on the queue.
func (m *Metrics) ObserveRelayed(result string) {
	if m == nil {
		return
	}
	m.outboxRelayed.WithLabelValues(result).Inc()
}
