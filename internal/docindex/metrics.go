package docindex

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes used as metric label values
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeNotReady = "not_ready"
)

// Metrics holds the Prometheus collectors for the index service.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	ReloadsTotal  *prometheus.CounterVec
	EntriesLoaded prometheus.Gauge
	ShardsLoaded  prometheus.Gauge
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with registry.
// A nil registry gets a private one, which keeps tests independent.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_queries_total",
				Help: "Total number of index queries",
			},
			[]string{"tool", "outcome"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docindex_query_duration_seconds",
				Help:    "Index query duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"tool"},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_reloads_total",
				Help: "Total number of index loads",
			},
			[]string{"outcome"},
		),
		EntriesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docindex_entries",
			Help: "Number of entries in the active store",
		}),
		ShardsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docindex_shards",
			Help: "Number of shards in the active store",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docindex_cache_hits_total",
			Help: "Total number of query cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docindex_cache_misses_total",
			Help: "Total number of query cache misses",
		}),
	}

	registry.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.ReloadsTotal,
		m.EntriesLoaded,
		m.ShardsLoaded,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

// ObserveQuery records one query.
func (m *Metrics) ObserveQuery(tool, outcome string, start time.Time) {
	m.QueriesTotal.WithLabelValues(tool, outcome).Inc()
	m.QueryDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

// ObserveLoad records a load attempt and, on success, the new store size.
func (m *Metrics) ObserveLoad(store *Store, err error) {
	if err != nil {
		m.ReloadsTotal.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.ReloadsTotal.WithLabelValues(OutcomeOK).Inc()
	m.EntriesLoaded.Set(float64(store.Len()))
	m.ShardsLoaded.Set(float64(len(store.shards)))
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
