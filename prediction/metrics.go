package prediction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictionsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passengerflow_prediction_computed_total",
		Help: "Total number of load predictions aggregated from history.",
	})
	predictionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passengerflow_prediction_failed_total",
		Help: "Total number of prediction computations that failed upstream.",
	})
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passengerflow_prediction_cache_hits_total",
		Help: "Prediction cache hits by entry kind.",
	}, []string{"kind"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passengerflow_prediction_cache_misses_total",
		Help: "Prediction cache misses by entry kind.",
	}, []string{"kind"})
	cacheSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passengerflow_prediction_cache_sweeps_total",
		Help: "Total number of full prediction cache clears.",
	})
	cacheEntriesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passengerflow_prediction_cache_evicted_entries_total",
		Help: "Total number of entries dropped by cache clears.",
	})
	computeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "passengerflow_prediction_compute_duration_seconds",
		Help:    "Duration of a single-point prediction aggregation.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5},
	})
)
