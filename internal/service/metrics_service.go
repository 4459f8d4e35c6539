package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
)

// Transition outcomes recorded by the workflow engine.
const (
	OutcomeApplied  = "applied"
	OutcomeDeclined = "declined"
	OutcomeIgnored  = "ignored"
	OutcomeFailed   = "failed"
)

// MetricsSnapshot is a lightweight summary served next to the health check.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsApplied       uint64    `json:"transitions_applied"`
	ActiveSubscriptions      int64     `json:"active_subscriptions"`
	Compositions             uint64    `json:"compositions"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService owns the Prometheus registry of the newsroom API.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	subscriptions    *subscriptionGauge
	compositions     prometheus.Counter
	searchIndexJobs  *prometheus.CounterVec
	blobDeleteFailed prometheus.Counter
	cacheOperations  *prometheus.CounterVec
	cacheLatency     *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	transitionsApplied   uint64
	compositionCount     uint64
	cacheHits            uint64
	cacheMisses          uint64
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdesk_status_transitions_total",
		Help: "Article status change attempts by edge and outcome",
	}, []string{"from", "to", "outcome"})

	subscriptions := &subscriptionGauge{Gauge: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "newsdesk_live_subscriptions",
		Help: "Open live query subscriptions",
	})}

	compositions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsdesk_feed_compositions_total",
		Help: "Number of times the public feed view was recomposed",
	})

	searchIndexJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdesk_search_index_jobs_total",
		Help: "Search index jobs by type and result",
	}, []string{"type", "result"})

	blobDeleteFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsdesk_blob_delete_failures_total",
		Help: "Image blobs that could not be removed after their article was deleted",
	})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdesk_cache_operations_total",
		Help: "Search cache lookups by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsdesk_cache_operation_seconds",
		Help:    "Latency of search cache reads and writes",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, subscriptions.Gauge, compositions, searchIndexJobs, blobDeleteFailed, cacheOperations, cacheLatency, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitions:      transitions,
		subscriptions:    subscriptions,
		compositions:     compositions,
		searchIndexJobs:  searchIndexJobs,
		blobDeleteFailed: blobDeleteFailed,
		cacheOperations:  cacheOperations,
		cacheLatency:     cacheLatency,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordTransition counts a status change attempt.
func (m *MetricsService) RecordTransition(from, to models.ArticleStatus, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to), outcome).Inc()
	if outcome == OutcomeApplied {
		atomic.AddUint64(&m.transitionsApplied, 1)
	}
}

// RecordComposition counts a recomposed feed view.
func (m *MetricsService) RecordComposition() {
	if m == nil {
		return
	}
	m.compositions.Inc()
	atomic.AddUint64(&m.compositionCount, 1)
}

// RecordSearchIndexJob counts a processed search index job.
func (m *MetricsService) RecordSearchIndexJob(jobType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.searchIndexJobs.WithLabelValues(jobType, result).Inc()
}

// RecordBlobDeleteFailure counts an orphaned image blob.
func (m *MetricsService) RecordBlobDeleteFailure() {
	if m == nil {
		return
	}
	m.blobDeleteFailed.Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		atomic.AddUint64(&m.cacheHits, 1)
	} else {
		atomic.AddUint64(&m.cacheMisses, 1)
	}
	m.cacheOperations.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheWrite records the latency of a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// SubscriptionGauge tracks open live queries. It satisfies livequery.Gauge.
func (m *MetricsService) SubscriptionGauge() livequery.Gauge {
	if m == nil {
		return nil
	}
	return m.subscriptions
}

// Snapshot returns aggregated metrics.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		TransitionsApplied:       atomic.LoadUint64(&m.transitionsApplied),
		ActiveSubscriptions:      m.subscriptions.open.Load(),
		Compositions:             atomic.LoadUint64(&m.compositionCount),
		CacheHits:                atomic.LoadUint64(&m.cacheHits),
		CacheMisses:              atomic.LoadUint64(&m.cacheMisses),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

type subscriptionGauge struct {
	prometheus.Gauge
	open atomic.Int64
}

func (g *subscriptionGauge) Inc() {
	g.Gauge.Inc()
	g.open.Add(1)
}

func (g *subscriptionGauge) Dec() {
	g.Gauge.Dec()
	g.open.Add(-1)
}
