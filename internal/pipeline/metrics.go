package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	ItemsStarted   prometheus.Counter
	ItemsCompleted *prometheus.CounterVec
	ItemsFailed    *prometheus.CounterVec
	ItemsCancelled prometheus.Counter
	StageDuration  *prometheus.HistogramVec
	StageRetries   *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
}

// NewMetrics registers the pipeline instruments with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ItemsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_items_started_total",
			Help:      "Pipeline items picked up by a worker.",
		}),
		ItemsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_items_completed_total",
			Help:      "Pipeline items completed, by gate decision.",
		}, []string{"decision"}),
		ItemsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_items_failed_total",
			Help:      "Pipeline items failed, by stage.",
		}, []string{"stage"}),
		ItemsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_items_cancelled_total",
			Help:      "Pipeline items cancelled between stages.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Wall time per stage execution.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		StageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_stage_retries_total",
			Help:      "In-run stage re-attempts, by kind (timeout or repair).",
		}, []string{"stage", "kind"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scriptforge",
			Name:      "pipeline_queue_depth",
			Help:      "Items waiting in the work queue.",
		}),
	}
}

// NopMetrics returns instruments backed by a throwaway registry, for tests
// and tools that do not scrape.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
