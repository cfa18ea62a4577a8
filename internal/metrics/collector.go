// Package metrics exposes Prometheus metrics for generation jobs and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "midjourney_adapter"

// Collector holds every metric of the service. A nil *Collector is valid and
// records nothing.
type Collector struct {
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	pollsTotal     *prometheus.CounterVec
	uploadsTotal   *prometheus.CounterVec
	activeJobs     *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	logSubscribers prometheus.Gauge
}

// NewCollector registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Generation jobs by provider, kind and outcome",
			},
			[]string{"provider", "kind", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall-clock duration of generation jobs",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"provider", "kind"},
		),
		pollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Status queries by provider and result",
			},
			[]string{"provider", "result"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_uploads_total",
				Help:      "Artifact uploads by provider and result",
			},
			[]string{"provider", "result"},
		),
		activeJobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_jobs",
				Help:      "Generation jobs currently running",
			},
			[]string{"provider"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		logSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "log_stream_subscribers",
				Help:      "Open progress log streams",
			},
		),
	}
}

// JobStarted marks a job as running and returns the function that records
// its outcome.
func (c *Collector) JobStarted(provider, kind string) func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.activeJobs.WithLabelValues(provider).Inc()
	return func(outcome string) {
		c.activeJobs.WithLabelValues(provider).Dec()
		c.jobsTotal.WithLabelValues(provider, kind, outcome).Inc()
		c.jobDuration.WithLabelValues(provider, kind).Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) RecordPoll(provider, result string) {
	if c == nil {
		return
	}
	c.pollsTotal.WithLabelValues(provider, result).Inc()
}

func (c *Collector) RecordUpload(provider string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.uploadsTotal.WithLabelValues(provider, result).Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) LogStreamOpened() {
	if c == nil {
		return
	}
	c.logSubscribers.Inc()
}

func (c *Collector) LogStreamClosed() {
	if c == nil {
		return
	}
	c.logSubscribers.Dec()
}
