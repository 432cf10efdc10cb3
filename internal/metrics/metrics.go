// Package metrics exposes Prometheus instrumentation for the API and the
// generation pipeline.
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

const namespace = "thumbnailer"

// Recorder owns a private registry so tests can create as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	requestsTotal prometheus.Counter
	uploadsTotal  *prometheus.CounterVec
	uploadBytes   prometheus.Histogram
}

// New registers every collector plus the Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Collaborator call latency per pipeline stage.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"stage", "provider"}),
		stageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Pipeline stage outcomes.",
		}, []string{"stage", "provider", "outcome"}),
		requestsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_created_total",
			Help:      "Generation requests created.",
		}),
		uploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Source image uploads by outcome.",
		}, []string{"outcome"}),
		uploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of accepted uploads.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 6),
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveHTTP(method, route string, status int, took time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// ObserveStage records one refine or generate collaborator call.
func (r *Recorder) ObserveStage(stage, provider string, err error, took time.Duration) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.stageTotal.WithLabelValues(stage, provider, outcome).Inc()
	r.stageDuration.WithLabelValues(stage, provider).Observe(took.Seconds())
}

func (r *Recorder) RequestCreated() {
	if r == nil {
		return
	}
	r.requestsTotal.Inc()
}

// Upload records an upload attempt; size is ignored for rejected uploads.
func (r *Recorder) Upload(accepted bool, size int64) {
	if r == nil {
		return
	}
	if !accepted {
		r.uploadsTotal.WithLabelValues("rejected").Inc()
		return
	}
	r.uploadsTotal.WithLabelValues("accepted").Inc()
	r.uploadBytes.Observe(float64(size))
}
