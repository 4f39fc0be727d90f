package metrics

import (
	"time"

	"github.com/cuemby/blockmesh/pkg/keynet"
	"github.com/cuemby/blockmesh/pkg/repo"
)

// Collector periodically samples directory membership/leadership state and
// local Repo occupancy into the package's gauges. Per-call counters
// (RPCRequestsTotal, PendDuration, CommitDuration, ...) are updated inline
// by the packages that own those operations instead, the way
// request-scoped metrics normally are; Collector only owns state that has
// to be polled.
type Collector struct {
	dir    *keynet.Directory
	repo   *repo.Repo
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over dir. repo may be nil
// for a process that hosts a directory but no local Repo.
func NewCollector(dir *keynet.Directory, r *repo.Repo) *Collector {
	return &Collector{
		dir:    dir,
		repo:   r,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectDirectoryMetrics()
	c.collectRepoMetrics()
}

func (c *Collector) collectDirectoryMetrics() {
	ClusterPeersTotal.Set(float64(len(c.dir.Members())))
	if c.dir.IsLeader() {
		DirectoryIsLeader.Set(1)
	} else {
		DirectoryIsLeader.Set(0)
	}
}

func (c *Collector) collectRepoMetrics() {
	if c.repo == nil {
		return
	}
	byType, pending := c.repo.Stats()
	BlocksTotal.Reset()
	for tag, n := range byType {
		BlocksTotal.WithLabelValues(tag).Set(float64(n))
	}
	PendingTrxTotal.Set(float64(pending))
}
