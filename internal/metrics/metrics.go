package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tweetsense"

// Prediction request metrics
var (
	// PredictionsTotal counts /predict outcomes (ok, no_results, bad_request, error)
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total prediction requests by outcome",
		},
		[]string{"outcome"},
	)

	// PipelineStageDuration tracks each pipeline stage latency in seconds
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_seconds",
			Help:      "Duration of search, clean, vectorize and predict stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"stage"},
	)

	// PostsScoredTotal counts classified posts by label
	PostsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_scored_total",
			Help:      "Total posts classified by sentiment label",
		},
		[]string{"label"},
	)

	// PostsFetched tracks how many posts a search returned
	PostsFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_posts_fetched",
			Help:      "Number of posts returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

// Resilience and startup metrics
var (
	// CircuitBreakerStateChanges tracks breaker transitions by component and new state
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// ArtifactDownloadsTotal counts artifact fetches by artifact and status
	ArtifactDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_downloads_total",
			Help:      "Model and tokenizer downloads by artifact and status",
		},
		[]string{"artifact", "status"},
	)

	// TwitterRequestsTotal counts upstream X/Twitter API calls by endpoint and outcome
	TwitterRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "twitter_requests_total",
			Help:      "X/Twitter API calls by endpoint and outcome (ok, error, rate_limited)",
		},
		[]string{"endpoint", "outcome"},
	)
)

// ObserveStage records the time elapsed since start for a pipeline stage.
func ObserveStage(stage string, start time.Time) {
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
