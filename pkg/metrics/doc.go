/*
Package metrics provides Prometheus metrics collection and exposition for
blockmesh.

The metrics package defines and registers every blockmesh metric using the
Prometheus client library, and exposes them over HTTP via Handler(). A
Collector periodically samples membership-directory state (peer count,
leadership) and local repo state (blocks by type, pending transactions)
into gauges; everything else is a counter or histogram updated inline by
the code that owns the operation (pkg/transactor, pkg/rpc,
cmd/blockmesh-compact).

# Metric Catalog

blockmesh_blocks_total{type}:
  - Type: Gauge
  - Description: Total number of blocks known locally, by block type tag
  - Example: blockmesh_blocks_total{type="CHD"} 12

blockmesh_pending_trx_total:
  - Type: Gauge
  - Description: Total number of transactions currently pending across all blocks

blockmesh_cluster_peers_total:
  - Type: Gauge
  - Description: Total number of peers in the membership directory

blockmesh_directory_is_leader:
  - Type: Gauge (0 or 1)
  - Description: Whether this node is the Raft leader of the membership directory

blockmesh_rpc_requests_total{method, status}:
  - Type: Counter
  - Description: Total RPC requests by method (Get/Pend/Cancel/Commit) and status

blockmesh_rpc_request_duration_seconds{method}:
  - Type: Histogram
  - Description: RPC request duration in seconds

blockmesh_coordinator_lookup_duration_seconds:
  - Type: Histogram
  - Description: Time to resolve a block id to a coordinating peer via XOR distance

blockmesh_batch_retries_total:
  - Type: Counter
  - Description: Total batch retries issued after a transport failure

blockmesh_pend_duration_seconds / blockmesh_commit_duration_seconds:
  - Type: Histogram
  - Description: End-to-end time for a full pend/commit call across every
    coordinating peer

blockmesh_cancels_total:
  - Type: Counter
  - Description: Total best-effort cancellations issued

blockmesh_recovery_sweeps_needed_total:
  - Type: Counter
  - Description: Commits whose tail landed but whose remaining blocks need a
    recovery sweep

blockmesh_compaction_duration_seconds:
  - Type: Histogram
  - Description: Time to compact a block's revision history

# Usage

	import "github.com/cuemby/blockmesh/pkg/metrics"

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	result, err := repo.Commit(ctx, req)
	timer.ObserveDuration(metrics.CommitDuration)

Sampled gauges:

	dir, _ := keynet.New(cfg)
	collector := metrics.NewCollector(dir, r)
	collector.Start()
	defer collector.Stop()

# Alerting Examples

  - No leader: max(blockmesh_directory_is_leader) == 0
  - High commit latency: histogram_quantile(0.95, blockmesh_commit_duration_seconds_bucket) > 1
  - Retry storm: rate(blockmesh_batch_retries_total[5m]) > 10
  - Recovery backlog growing: rate(blockmesh_recovery_sweeps_needed_total[5m]) > 0
*/
package metrics
