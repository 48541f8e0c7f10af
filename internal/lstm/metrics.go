package lstm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recurve_forward_total",
		Help: "Total number of forward passes by driver mode",
	}, []string{"mode"})

	forwardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recurve_forward_duration_seconds",
		Help:    "Time spent in one forward pass",
		Buckets: prometheus.DefBuckets,
	})

	timestepsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurve_timesteps_total",
		Help: "Total number of timesteps advanced",
	})

	sequencesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurve_sequences_total",
		Help: "Total number of sequences processed",
	})

	batchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurve_batch_fallback_total",
		Help: "Batched forward passes redirected to the sequential driver",
	})

	scheduleCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurve_schedule_cache_hits_total",
		Help: "Total number of batch schedule cache hits",
	})

	scheduleCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurve_schedule_cache_misses_total",
		Help: "Total number of batch schedule cache misses (builds)",
	})
)
