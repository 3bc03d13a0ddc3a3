package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index-level metrics. Registered explicitly from main (no init()) so tests
// importing this package do not double-register.
var (
	// UpsertRecordsTotal counts records applied per collection.
	UpsertRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annex",
			Name:      "upsert_records_total",
			Help:      "Total number of records upserted",
		},
		[]string{"collection"},
	)

	// SearchDuration tracks index search latency per collection.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "annex",
			Name:      "search_duration_seconds",
			Help:      "Vector search duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"collection"},
	)

	// CollectionsGauge tracks the number of live collections.
	CollectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "annex",
			Name:      "collections",
			Help:      "Number of collections in the registry",
		},
	)

	// EmbeddingRequestsTotal counts embedding provider calls by outcome.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider requests",
		},
		[]string{"outcome"},
	)
)

// RegisterIndexMetrics registers the index and embedding metrics.
func RegisterIndexMetrics() {
	prometheus.MustRegister(UpsertRecordsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(CollectionsGauge)
	prometheus.MustRegister(EmbeddingRequestsTotal)
}
