// Package metrics exposes Prometheus metrics for the pipeline and its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "lipsync"

// Pipeline stages, used as the "stage" label.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageInference = "inference"
	StagePublish   = "publish"
)

// Collector owns a private registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	synthesisTotal    *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	inferenceRuns     *prometheus.CounterVec
	uploadsTotal      *prometheus.CounterVec
	synthesisInFlight prometheus.Gauge
}

// NewCollector creates a collector with Go runtime and process metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"method", "route"},
		),
		synthesisTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "synthesis_total",
				Help:      "Synthesis requests by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		inferenceRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "inference_runs_total",
				Help:      "Inference runs by status",
			},
			[]string{"status"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "uploads_total",
				Help:      "Video uploads to object storage by result",
			},
			[]string{"result"},
		),
		synthesisInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "synthesis_in_flight",
				Help:      "Synthesis requests currently running",
			},
		),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStage records how long a pipeline stage took.
func (c *Collector) ObserveStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordInference counts a finished inference run.
func (c *Collector) RecordInference(status string) {
	c.inferenceRuns.WithLabelValues(status).Inc()
}

// RecordUploads counts published videos and, when failed is set, one failed upload.
func (c *Collector) RecordUploads(published int, failed bool) {
	c.uploadsTotal.WithLabelValues("ok").Add(float64(published))

	if failed {
		c.uploadsTotal.WithLabelValues("error").Inc()
	}
}

// RecordSynthesis counts a finished request by outcome.
func (c *Collector) RecordSynthesis(outcome string) {
	c.synthesisTotal.WithLabelValues(outcome).Inc()
}

// TrackInFlight marks a request as running and returns a func that unmarks it.
func (c *Collector) TrackInFlight() func() {
	c.synthesisInFlight.Inc()

	return c.synthesisInFlight.Dec
}
