package syncengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	coalesced     prometheus.Counter
	operations    *prometheus.CounterVec
	merges        *prometheus.CounterVec
	pending       prometheus.Gauge
	stuck         prometheus.Gauge
}

// newMetrics builds the engine collectors. With a nil registerer they work
// but are not exported.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "sync_cycles_total",
			Help:      "Sync cycles run, by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splitsync",
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of sync cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "sync_calls_coalesced_total",
			Help:      "Sync calls that shared an in-flight cycle.",
		}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "pushed_operations_total",
			Help:      "Queued operations sent to the remote, by kind and result.",
		}, []string{"op", "result"}),
		merges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "pulled_merges_total",
			Help:      "Remote records merged into the local store, by action.",
		}, []string{"action"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitsync",
			Name:      "pending_operations",
			Help:      "Incomplete operations in the log.",
		}),
		stuck: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitsync",
			Name:      "stuck_operations",
			Help:      "Operations no longer retried automatically.",
		}),
	}
}
