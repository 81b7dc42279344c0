// Package metrics exposes Prometheus counters for the story pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storyreel/storyreel-agent/internal/artifacts"
)

// Metrics holds Prometheus counters and gauges for the agent.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	postsFetched      *prometheus.CounterVec
	postsAdmitted     *prometheus.CounterVec
	postsRejected     *prometheus.CounterVec
	segmentsRendered  prometheus.Counter
	segmentsAbandoned prometheus.Counter
	clipsSplit        prometheus.Counter
	clipsPublished    prometheus.Counter
	clipsFailed       prometheus.Counter
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	activeRun         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the agent.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_http_requests_total",
			Help: "Total number of control API requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_http_errors_total",
			Help: "Total number of control API responses with error status (4xx or 5xx)",
		}),
		postsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_posts_fetched_total",
			Help: "Posts returned by community listings",
		}, []string{"subreddit"}),
		postsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_posts_admitted_total",
			Help: "Posts that passed the admission filter",
		}, []string{"subreddit"}),
		postsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_posts_rejected_total",
			Help: "Posts rejected by the admission filter",
		}, []string{"reason"}),
		segmentsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_segments_rendered_total",
			Help: "Segments with a finished clip",
		}),
		segmentsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_segments_abandoned_total",
			Help: "Segments skipped after a narration, card or composite failure",
		}),
		clipsSplit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_clips_split_total",
			Help: "Clips cut into chunks for exceeding the duration limit",
		}),
		clipsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_clips_published_total",
			Help: "Clips uploaded successfully",
		}),
		clipsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_clips_failed_total",
			Help: "Clip uploads that failed",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_artifact_cache_hits_total",
			Help: "Artifact lookups served from the store",
		}, []string{"kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_artifact_cache_misses_total",
			Help: "Artifact lookups that required generation",
		}, []string{"kind"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_runs_total",
			Help: "Completed runs by final status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyreel_run_duration_seconds",
			Help:    "Wall-clock duration of runs",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}),
		activeRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storyreel_run_active",
			Help: "1 while a run is in progress",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.postsFetched,
		m.postsAdmitted,
		m.postsRejected,
		m.segmentsRendered,
		m.segmentsAbandoned,
		m.clipsSplit,
		m.clipsPublished,
		m.clipsFailed,
		m.cacheHits,
		m.cacheMisses,
		m.runsTotal,
		m.runDuration,
		m.activeRun,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

func (m *Metrics) PostsFetched(subreddit string, n int) {
	m.postsFetched.WithLabelValues(subreddit).Add(float64(n))
}

func (m *Metrics) PostAdmitted(subreddit string) {
	m.postsAdmitted.WithLabelValues(subreddit).Inc()
}

func (m *Metrics) PostRejected(reason string) {
	m.postsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SegmentRendered() { m.segmentsRendered.Inc() }

func (m *Metrics) SegmentAbandoned() { m.segmentsAbandoned.Inc() }

func (m *Metrics) ClipSplit() { m.clipsSplit.Inc() }

func (m *Metrics) ClipPublished() { m.clipsPublished.Inc() }

func (m *Metrics) ClipFailed() { m.clipsFailed.Inc() }

// CacheHit and CacheMiss satisfy artifacts.CacheObserver.
func (m *Metrics) CacheHit(kind artifacts.Kind) {
	m.cacheHits.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CacheMiss(kind artifacts.Kind) {
	m.cacheMisses.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RunStarted() { m.activeRun.Set(1) }

func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	m.activeRun.Set(0)
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
