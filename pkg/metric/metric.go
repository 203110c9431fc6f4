// Package metric exposes Prometheus instrumentation for the embedding
// caches and the query façade.
//
// A nil *Metrics is a valid no-op receiver, so instrumented code never
// needs to branch on whether metrics are enabled.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine emits.
type Metrics struct {
	// Cache metrics
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheEvictions     prometheus.Counter
	CacheResidentBytes prometheus.Gauge
	CacheResident      prometheus.Gauge
	LoadDuration       prometheus.Histogram

	// Query metrics
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates the full collector set. Nothing is registered
// until Register is called.
func NewMetrics() *Metrics {
	return &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wordvec",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of path cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wordvec",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of path cache misses",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wordvec",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of artifacts evicted from the path cache",
		}),
		CacheResidentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wordvec",
			Subsystem: "cache",
			Name:      "resident_bytes",
			Help:      "Aggregate byte cost of resident artifacts",
		}),
		CacheResident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wordvec",
			Subsystem: "cache",
			Name:      "resident_entries",
			Help:      "Number of resident artifacts",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wordvec",
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Help:      "Artifact load duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wordvec",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total query requests by operation and status",
		}, []string{"operation", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wordvec",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query duration in seconds by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Register attaches all collectors to the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	collectors := []prometheus.Collector{
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
		m.CacheResidentBytes,
		m.CacheResident,
		m.LoadDuration,
		m.QueryRequests,
		m.QueryDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveCacheHit records a path cache hit.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveCacheMiss records a path cache miss.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// ObserveEviction records an eviction and the resulting resident state.
func (m *Metrics) ObserveEviction(residentBytes int64, residentEntries int) {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
	m.CacheResidentBytes.Set(float64(residentBytes))
	m.CacheResident.Set(float64(residentEntries))
}

// ObserveLoad records a completed artifact load.
func (m *Metrics) ObserveLoad(d time.Duration, residentBytes int64, residentEntries int) {
	if m == nil {
		return
	}
	m.LoadDuration.Observe(d.Seconds())
	m.CacheResidentBytes.Set(float64(residentBytes))
	m.CacheResident.Set(float64(residentEntries))
}

// ObserveQuery records one façade request.
func (m *Metrics) ObserveQuery(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueryRequests.WithLabelValues(operation, status).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}
