package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Repo metrics
	BlocksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blockmesh_blocks_total",
			Help: "Total number of blocks known locally, by type",
		},
		[]string{"type"},
	)

	PendingTrxTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockmesh_pending_trx_total",
			Help: "Total number of transactions currently pending across all blocks",
		},
	)

	// Directory/keynet metrics
	ClusterPeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockmesh_cluster_peers_total",
			Help: "Total number of peers in the membership directory",
		},
	)

	DirectoryIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockmesh_directory_is_leader",
			Help: "Whether this node is the Raft leader of the membership directory (1 = leader, 0 = follower)",
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockmesh_rpc_requests_total",
			Help: "Total number of RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockmesh_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Transactor metrics
	CoordinatorLookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockmesh_coordinator_lookup_duration_seconds",
			Help:    "Time taken to resolve a block id to a coordinating peer in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockmesh_batch_retries_total",
			Help: "Total number of batch retries issued after a transport failure",
		},
	)

	PendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockmesh_pend_duration_seconds",
			Help:    "Time taken for a full pend call across every coordinating peer",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockmesh_commit_duration_seconds",
			Help:    "Time taken for a full commit call across every coordinating peer",
			Buckets: prometheus.DefBuckets,
		},
	)

	CancelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockmesh_cancels_total",
			Help: "Total number of best-effort cancellations issued",
		},
	)

	RecoverySweepsNeededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockmesh_recovery_sweeps_needed_total",
			Help: "Total number of commits whose tail block landed but whose remaining blocks need a recovery sweep",
		},
	)

	// fsrepo metrics
	CompactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockmesh_compaction_duration_seconds",
			Help:    "Time taken to compact revision history for a block in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(BlocksTotal)
	prometheus.MustRegister(PendingTrxTotal)
	prometheus.MustRegister(ClusterPeersTotal)
	prometheus.MustRegister(DirectoryIsLeader)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(CoordinatorLookupDuration)
	prometheus.MustRegister(BatchRetriesTotal)
	prometheus.MustRegister(PendDuration)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(CancelsTotal)
	prometheus.MustRegister(RecoverySweepsNeededTotal)
	prometheus.MustRegister(CompactionDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
