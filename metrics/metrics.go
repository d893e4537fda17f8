package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pd_requests_total",
			Help: "Prediction requests by outcome code",
		},
		[]string{"code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pd_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"},
	)

	TargetDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pd_target_detections_total",
			Help: "Detections of the target class returned to callers",
		},
	)

	DroppedDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pd_dropped_detections_total",
			Help: "Detections discarded because they are not the target class",
		},
	)

	PoolSessionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pd_pool_sessions_in_use",
			Help: "Detector sessions currently checked out",
		},
	)

	PoolAcquireFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pd_pool_acquire_failures_total",
			Help: "Session acquisitions that timed out",
		},
	)

	PoolWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pd_pool_wait_seconds",
			Help:    "Time spent waiting for a detector session",
			Buckets: prometheus.DefBuckets,
		},
	)

	PoolReplenished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pd_pool_sessions_replenished_total",
			Help: "Sessions recreated by the pool health check",
		},
	)
)
