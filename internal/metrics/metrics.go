// Package metrics exposes Prometheus collectors for the enrichment workers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes recorded by RecordJob.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead"
)

// Collector holds the pipeline collectors. A nil *Collector is valid and
// records nothing, so components can take it as an optional dependency.
type Collector struct {
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the collectors and registers them on reg.
// gatherer backs Handler; pass the same registry used for reg.
func NewCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	c := &Collector{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_jobs_total",
			Help: "Jobs processed, by job type and outcome.",
		}, []string{"type", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leads_job_duration_seconds",
			Help:    "Job handler latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_cache_lookups_total",
			Help: "Resolver cache lookups, by cache and result (hit, negative, miss, error).",
		}, []string{"cache", "result"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_provider_calls_total",
			Help: "External provider calls, by provider and result.",
		}, []string{"provider", "result"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leads_queue_jobs",
			Help: "Jobs in the queue, by job type and status.",
		}, []string{"type", "status"}),
		gatherer: gatherer,
	}

	reg.MustRegister(c.jobs, c.jobDuration, c.cacheLookups, c.providerCalls, c.queueDepth)
	return c
}

// RecordJob records one handled job.
func (c *Collector) RecordJob(jobType, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(jobType, outcome).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordCacheLookup records a cache lookup result.
func (c *Collector) RecordCacheLookup(cache, result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordProviderCall records an external provider call.
func (c *Collector) RecordProviderCall(provider string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.providerCalls.WithLabelValues(provider, result).Inc()
}

// SetQueueDepth sets the gauge for one job type and status.
func (c *Collector) SetQueueDepth(jobType, status string, n int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(jobType, status).Set(float64(n))
}

// Handler serves the registered collectors in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
