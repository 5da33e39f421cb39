package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the flow engine.
type Metrics struct {
	// Selection metrics
	Selections       *prometheus.CounterVec
	SelectionLatency *prometheus.HistogramVec
	MetricDowngrades *prometheus.CounterVec
	EmptySelections  prometheus.Counter

	// Ranking metrics
	Rankings       *prometheus.CounterVec
	RankingLatency *prometheus.HistogramVec

	// Ingest metrics
	ExportsLoaded *prometheus.CounterVec
	RowsLoaded    prometheus.Counter
	RowsSkipped   prometheus.Counter

	// Similarity metrics
	SimilarityCalls     *prometheus.CounterVec
	SimilarityLatency   *prometheus.HistogramVec
	SimilarityCacheHits *prometheus.CounterVec

	// System metrics
	ActiveSessions prometheus.Gauge
	DBConnections  *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		Selections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selections_total",
				Help:      "Flow selections by winning metric",
			},
			[]string{"metric", "state"},
		),
		SelectionLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "selection_latency_seconds",
				Help:      "Best-flow selection latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"state"},
		),
		MetricDowngrades: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_downgrades_total",
				Help:      "Selections where the ranking metric was downgraded",
			},
			[]string{"from", "to"},
		),
		EmptySelections: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "empty_selections_total",
				Help:      "Selections that produced no flow",
			},
		),

		Rankings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rankings_total",
				Help:      "Top-N ranking runs by direction",
			},
			[]string{"direction"},
		),
		RankingLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ranking_latency_seconds",
				Help:      "Top-N ranking latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"direction"},
		),

		ExportsLoaded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_loaded_total",
				Help:      "Export files loaded by container type",
			},
			[]string{"container"},
		),
		RowsLoaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_loaded_total",
				Help:      "Performance rows parsed from exports",
			},
		),
		RowsSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_skipped_total",
				Help:      "Malformed export rows skipped",
			},
		),

		SimilarityCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "similarity_calls_total",
				Help:      "Similarity scoring backend calls",
			},
			[]string{"pair", "status"},
		),
		SimilarityLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "similarity_latency_seconds",
				Help:      "Similarity scoring latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"pair"},
		),
		SimilarityCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "similarity_cache_total",
				Help:      "Similarity cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live analysis sessions",
			},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSelection records one selection run.
func (m *Metrics) RecordSelection(metric, state string, latency time.Duration) {
	m.Selections.WithLabelValues(metric, state).Inc()
	m.SelectionLatency.WithLabelValues(state).Observe(latency.Seconds())
}

// RecordDowngrade records a metric cascade downgrade.
func (m *Metrics) RecordDowngrade(from, to string) {
	m.MetricDowngrades.WithLabelValues(from, to).Inc()
}

// RecordEmptySelection records a selection with no result.
func (m *Metrics) RecordEmptySelection() {
	m.EmptySelections.Inc()
}

// RecordRanking records one ranking run.
func (m *Metrics) RecordRanking(direction string, latency time.Duration) {
	m.Rankings.WithLabelValues(direction).Inc()
	m.RankingLatency.WithLabelValues(direction).Observe(latency.Seconds())
}

// RecordExport records a parsed export.
func (m *Metrics) RecordExport(container string, rows, skipped int) {
	m.ExportsLoaded.WithLabelValues(container).Inc()
	m.RowsLoaded.Add(float64(rows))
	m.RowsSkipped.Add(float64(skipped))
}

// RecordSimilarityCall records a scoring backend call.
func (m *Metrics) RecordSimilarityCall(pair, status string, latency time.Duration) {
	m.SimilarityCalls.WithLabelValues(pair, status).Inc()
	m.SimilarityLatency.WithLabelValues(pair).Observe(latency.Seconds())
}

// RecordSimilarityCache records a cache lookup outcome.
func (m *Metrics) RecordSimilarityCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.SimilarityCacheHits.WithLabelValues(outcome).Inc()
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
