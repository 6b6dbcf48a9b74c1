// Package metrics defines the prometheus collectors exposed by the
// harvester, grounded on the client_golang dependency already present in
// the pack's service-oriented repos.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the harvester registers.
type Collectors struct {
	DownloadsAttempted *prometheus.CounterVec
	DownloadsSucceeded *prometheus.CounterVec
	StructuringCalls   *prometheus.CounterVec
	KVOperationLatency *prometheus.HistogramVec
}

// New creates and registers all collectors against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		DownloadsAttempted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "downloads_attempted_total",
			Help:      "Download attempts per transport.",
		}, []string{"transport"}),
		DownloadsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "downloads_succeeded_total",
			Help:      "Successful downloads per transport.",
		}, []string{"transport"}),
		StructuringCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "structuring_calls_total",
			Help:      "Structuring service calls per endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		KVOperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "harvester",
			Name:      "kv_operation_latency_seconds",
			Help:      "Latency of key-value store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"map", "op"}),
	}
	reg.MustRegister(c.DownloadsAttempted, c.DownloadsSucceeded, c.StructuringCalls, c.KVOperationLatency)
	return c
}
