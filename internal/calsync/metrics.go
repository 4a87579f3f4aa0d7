package calsync

import "github.com/prometheus/client_golang/prometheus"

// Result labels for calsync_requests_total.
const (
	resultFresh     = "fresh"
	resultCoalesced = "coalesced"
	resultFetched   = "fetched"
	resultStale     = "stale"
	resultError     = "error"
	resultTimeout   = "timeout"
)

var (
	// cacheRequests counts Fetch calls by how they were served.
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_requests_total",
			Help: "Calendar cache reads by outcome (fresh, coalesced, fetched, stale, error, timeout).",
		},
		[]string{"result"},
	)

	// upstreamFetches counts upstream calendar fetches by outcome.
	upstreamFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_upstream_fetch_total",
			Help: "Upstream calendar fetches by outcome (success, failure).",
		},
		[]string{"outcome"},
	)

	// upstreamLatency observes upstream fetch duration in seconds.
	upstreamLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calsync_upstream_fetch_duration_seconds",
			Help:    "Duration of upstream calendar fetches in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, upstreamFetches, upstreamLatency)
}
