package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
type Metrics struct {
	runsTotal     prometheus.Counter
	runErrors     prometheus.Counter
	rowsExtracted prometheus.Counter
	martRows      prometheus.Counter
	runDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates and registers the pipeline metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bionicpro_pipeline_runs_total",
			Help: "Total number of completed pipeline runs",
		}),
		runErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bionicpro_pipeline_run_errors_total",
			Help: "Total number of failed pipeline runs",
		}),
		rowsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bionicpro_pipeline_crm_rows_extracted_total",
			Help: "Total CRM rows copied into the warehouse",
		}),
		martRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bionicpro_pipeline_mart_rows_written_total",
			Help: "Total mart rows written by refresh",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bionicpro_pipeline_run_duration_seconds",
			Help:    "Duration of full pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
		}),
	}

	registry.MustRegister(m.runsTotal, m.runErrors, m.rowsExtracted, m.martRows, m.runDuration)
	return m
}

// ObserveRun records a successful run
func (m *Metrics) ObserveRun(duration time.Duration, rowsExtracted, martRows int64) {
	m.runsTotal.Inc()
	m.rowsExtracted.Add(float64(rowsExtracted))
	m.martRows.Add(float64(martRows))
	m.runDuration.Observe(duration.Seconds())
}

// ObserveError records a failed run
func (m *Metrics) ObserveError() {
	m.runsTotal.Inc()
	m.runErrors.Inc()
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
