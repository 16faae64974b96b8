// Package observability holds the pipeline's metrics and error reporting.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	parsed   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	enqueued prometheus.Counter
}

// NewMetrics registers the pipeline collectors on a fresh registry together
// with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		parsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "documents_parsed_success_total",
			Help: "Total number of successfully parsed documents.",
		}, []string{"file_type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "documents_processing_duration_seconds",
			Help:    "Time taken to process one document job.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"file_type"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "documents_outcome_total",
			Help: "Document jobs by outcome.",
		}, []string{"outcome"}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_enqueued_total",
			Help: "Documents published to the work queue by the scheduler.",
		}),
	}
	reg.MustRegister(
		m.parsed, m.duration, m.outcomes, m.enqueued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ParseSucceeded(fileType string) {
	m.parsed.WithLabelValues(fileType).Inc()
}

func (m *Metrics) ObserveDuration(fileType string, d time.Duration) {
	m.duration.WithLabelValues(fileType).Observe(d.Seconds())
}

func (m *Metrics) Outcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Enqueued(n int) {
	m.enqueued.Add(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
