package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azula9713/yae-their-share/internal/serverdb"
)

// Metrics holds the server's prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	writes      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// NewMetrics registers the server collectors, plus a gauge reading record
// counts from store at scrape time.
func NewMetrics(store *serverdb.ServerDB) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync_server",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitsync_server",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync_server",
			Name:      "record_writes_total",
			Help:      "Record writes by operation and result.",
		}, []string{"op", "result"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync_server",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by endpoint class.",
		}, []string{"class"}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "splitsync_server",
		Name:      "records",
		Help:      "Stored records, live and logically deleted.",
	}, func() float64 {
		live, deleted, err := store.CountRecords()
		if err != nil {
			return 0
		}
		return float64(live + deleted)
	})
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
