// Package metrics exposes Prometheus metrics for the trust chain validation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationsTotal counts trust chain validations by outcome (valid, invalid, error).
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedtrust_validations_total",
			Help: "Total number of trust chain validations by outcome",
		},
		[]string{"outcome"},
	)

	// ValidationDuration tracks how long full validations take, excluding cache hits.
	ValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedtrust_validation_duration_seconds",
			Help:    "Duration of trust chain validations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// ValidationErrors counts validation failures by error code.
	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedtrust_validation_errors_total",
			Help: "Total number of validation errors by error code",
		},
		[]string{"code"},
	)

	// CacheHits counts validation cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedtrust_cache_hits_total",
			Help: "Total number of validation cache hits",
		},
	)

	// CacheMisses counts validation cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedtrust_cache_misses_total",
			Help: "Total number of validation cache misses",
		},
	)

	// CacheSize tracks the current number of entries in the validation cache.
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedtrust_cache_size",
			Help: "Current number of entries in the validation cache",
		},
	)

	// ChainLength tracks the length of successfully resolved trust chains.
	ChainLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedtrust_chain_length",
			Help:    "Number of statements in successfully resolved trust chains",
			Buckets: []float64{2, 3, 4, 5, 6, 8, 10, 12},
		},
	)
)

// RecordValidation records the outcome and duration of a completed validation.
func RecordValidation(outcome string, duration time.Duration) {
	ValidationsTotal.WithLabelValues(outcome).Inc()
	ValidationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordValidationError records a validation failure by error code.
func RecordValidationError(code string) {
	ValidationErrors.WithLabelValues(code).Inc()
}

// RecordCacheHit records a validation cache hit.
func RecordCacheHit() {
	CacheHits.Inc()
}

// RecordCacheMiss records a validation cache miss.
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// UpdateCacheSize sets the current validation cache size.
func UpdateCacheSize(size int) {
	CacheSize.Set(float64(size))
}

// RecordChainLength records the length of a successfully resolved trust chain.
func RecordChainLength(length int) {
	ChainLength.Observe(float64(length))
}
