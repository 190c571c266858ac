package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Signing pipeline metrics
	SignOperations *prometheus.CounterVec
	SignLatency    prometheus.Histogram
	StageLatency   *prometheus.HistogramVec

	// Renderer metrics
	RenderersInUse prometheus.Gauge
	RenderTimeouts prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Notification metrics
	NotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg. A nil
// registerer means the default prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SignOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "operations_total",
			Help:      "Total number of report signing operations by outcome",
		}, []string{"outcome"}),
		SignLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "duration_seconds",
			Help:      "End to end duration of the signing pipeline",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each signing pipeline stage",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"stage"}),

		RenderersInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "instances_in_use",
			Help:      "Current number of running renderer processes",
		}),
		RenderTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "timeouts_total",
			Help:      "Total number of renders killed after exceeding the timeout",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total number of post-sign notifications that failed",
		}, []string{"notifier"}),
	}
}

// NewNop returns metrics registered on a throwaway registry, for tests and tools.
func NewNop() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}
