package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Retrieval metrics
	RetrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_retrieval_requests_total",
			Help: "Total number of retrieval requests",
		},
		[]string{"entity_type", "outcome"},
	)

	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filmatlas_retrieval_duration_seconds",
			Help:    "Retrieval state machine duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"key_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"key_type"},
	)

	CacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filmatlas_cache_errors_total",
			Help: "Total number of cache operation failures",
		},
	)

	// Generation slot metrics
	SlotsAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_generation_slots_acquired_total",
			Help: "Total number of generation slots acquired",
		},
		[]string{"entity_type"},
	)

	SlotContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_generation_slot_contention_total",
			Help: "Total number of slot acquisitions lost to an in-flight job",
		},
		[]string{"entity_type"},
	)

	// Generation job metrics
	JobsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_generation_jobs_dispatched_total",
			Help: "Total number of generation jobs dispatched",
		},
		[]string{"entity_type"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_generation_jobs_completed_total",
			Help: "Total number of generation jobs completed",
		},
		[]string{"entity_type", "status"},
	)

	// Safety pipeline metrics
	InjectionDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_injection_detections_total",
			Help: "Total number of prompt injection signatures detected",
		},
		[]string{"input_type"},
	)

	OutputValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filmatlas_output_validation_failures_total",
			Help: "Total number of AI outputs rejected by the safety pipeline",
		},
	)

	OutputValidationWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_output_validation_warnings_total",
			Help: "Total number of non-blocking safety warnings raised",
		},
		[]string{"kind"},
	)

	PlausibilityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_plausibility_rejections_total",
			Help: "Total number of slugs rejected by the plausibility filter",
		},
		[]string{"entity_type"},
	)

	// External verification metrics
	VerificationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmatlas_verification_requests_total",
			Help: "Total number of external metadata verification calls",
		},
		[]string{"entity_type", "result"},
	)

	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filmatlas_verification_duration_seconds",
			Help:    "External verification call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)
