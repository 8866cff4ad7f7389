package monitoring

import "github.com/prometheus/client_golang/prometheus"

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkchan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forkchan_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RemoteOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkchan_remote_ops_total",
			Help: "Total number of remote store operations",
		},
		[]string{"op", "outcome"},
	)

	RemoteOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forkchan_remote_op_duration_seconds",
			Help:    "Duration of remote store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	PendingMutations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forkchan_pending_mutations",
			Help: "Number of like toggles waiting for their remote write",
		},
	)

	Rollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forkchan_rollbacks_total",
			Help: "Total number of optimistic updates rolled back after a failed write",
		},
	)

	StaleFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkchan_stale_fetches_total",
			Help: "Total number of fetch results discarded because a newer one was already applied",
		},
		[]string{"resource"},
	)
)

// Register registers every collector of the package with the default registry.
func Register() {
	prometheus.MustRegister(
		HttpRequestsTotal,
		HttpRequestDuration,
		RemoteOpsTotal,
		RemoteOpDuration,
		PendingMutations,
		Rollbacks,
		StaleFetches,
	)
}
