package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doc_analyzer_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"format"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_analyses_total",
			Help: "Total number of analyses by outcome",
		},
		[]string{"format", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doc_analyzer_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"stage"},
	)

	StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_stage_failures_total",
			Help: "Pipeline failures by stage",
		},
		[]string{"stage"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_llm_requests_total",
			Help: "Generation requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	ExtractionWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_extraction_warnings_total",
			Help: "Recoverable extraction problems by kind",
		},
		[]string{"kind"},
	)

	ParseRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doc_analyzer_parse_repairs_total",
			Help: "Replies that needed the JSON repair pass",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_analyzer_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doc_analyzer_documents_processed_total",
			Help: "Total documents processed",
		},
	)

	KGEntitiesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doc_analyzer_kg_entities_recorded_total",
			Help: "Entity mentions written to the knowledge graph",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doc_analyzer_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AnalysisDuration)
		prometheus.MustRegister(AnalysesTotal)
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(StageFailures)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(LLMRequests)
		prometheus.MustRegister(ExtractionWarnings)
		prometheus.MustRegister(ParseRepairs)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(DocumentsProcessed)
		prometheus.MustRegister(KGEntitiesRecorded)
		prometheus.MustRegister(CircuitBreakerState)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
