package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "complymatch_scoring_duration_seconds",
			Help:    "Score aggregation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"mode"},
	)

	ScoringTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complymatch_scoring_total",
			Help: "Total number of assessments scored",
		},
		[]string{"status"},
	)

	GapsExtracted = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "complymatch_gaps_extracted",
			Help:    "Number of gaps extracted per assessment",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"severity"},
	)

	MatchesComputed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "complymatch_matches_computed",
			Help:    "Number of vendor matches per gap",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	MatchScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "complymatch_match_score",
			Help:    "Vendor match score distribution",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complymatch_evaluations_total",
			Help: "Total evidence evaluations by outcome",
		},
		[]string{"status"},
	)

	EvaluationTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complymatch_evaluation_tokens_used",
			Help: "Total evaluation model tokens used",
		},
		[]string{"model", "type"},
	)

	WeightCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complymatch_weight_commits_total",
			Help: "Total weight batch commits",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complymatch_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complymatch_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CatalogVendorsImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complymatch_catalog_vendors_imported_total",
			Help: "Total vendors imported into the catalog",
		},
	)

	CategoryGraphSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "complymatch_category_graph_size",
			Help: "Number of categories in the relatedness graph",
		},
	)
)

func Init() {
	prometheus.MustRegister(ScoringDuration)
	prometheus.MustRegister(ScoringTotal)
	prometheus.MustRegister(GapsExtracted)
	prometheus.MustRegister(MatchesComputed)
	prometheus.MustRegister(MatchScore)
	prometheus.MustRegister(EvaluationsTotal)
	prometheus.MustRegister(EvaluationTokensUsed)
	prometheus.MustRegister(WeightCommitsTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CatalogVendorsImported)
	prometheus.MustRegister(CategoryGraphSize)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
