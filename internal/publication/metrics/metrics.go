package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the publication module.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Writes               *prometheus.CounterVec
	InvalidationFailures *prometheus.CounterVec
	KeysCleared          prometheus.Counter
	MirrorUpdates        prometheus.Counter
	OrphansSkipped       prometheus.Counter
	ListingCache         *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	InvalidationDuration prometheus.Histogram
}

// New registers the publication metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the publication metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_publication_writes_total",
			Help: "Publication record writes by operation",
		}, []string{"op"}),
		InvalidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_invalidation_failures_total",
			Help: "Post-write hook steps that failed and were swallowed",
		}, []string{"step"}),
		KeysCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "herald_cache_keys_cleared_total",
			Help: "Cache keys deleted by the post-write hook",
		}),
		MirrorUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "herald_published_at_mirror_updates_total",
			Help: "Entity published-at mirrors refreshed after approval",
		}),
		OrphansSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "herald_orphaned_publications_skipped_total",
			Help: "Published records skipped because their entity no longer resolves",
		}),
		ListingCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_listing_cache_requests_total",
			Help: "Published listing cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "herald_publication_query_duration_seconds",
			Help:    "Duration of publication service operations",
			Buckets: durationBuckets,
		}, []string{"op"}),
		InvalidationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "herald_invalidation_duration_seconds",
			Help:    "Duration of the post-write hook",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementWrite(op string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementInvalidationFailure(step string) {
	if m == nil {
		return
	}
	m.InvalidationFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) AddKeysCleared(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.KeysCleared.Add(float64(n))
}

func (m *Metrics) IncrementMirrorUpdate() {
	if m == nil {
		return
	}
	m.MirrorUpdates.Inc()
}

func (m *Metrics) IncrementOrphanSkipped() {
	if m == nil {
		return
	}
	m.OrphansSkipped.Inc()
}

// ObserveListingCache records a lookup result: "hit", "miss" or "error".
func (m *Metrics) ObserveListingCache(result string) {
	if m == nil {
		return
	}
	m.ListingCache.WithLabelValues(result).Inc()
}

// ObserveQuery records the duration of a service operation started at start.
func (m *Metrics) ObserveQuery(op string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveInvalidation(start time.Time) {
	if m == nil {
		return
	}
	m.InvalidationDuration.Observe(time.Since(start).Seconds())
}
