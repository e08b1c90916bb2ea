package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Source is the cluster view the collector samples
type Source interface {
	ListNodes() []*types.Node
	Resources() types.ClusterResources
}

// Observer is notified with every node snapshot the collector takes
type Observer func(nodes []*types.Node)

// Collector periodically refreshes the cluster gauges from a Source
type Collector struct {
	source    Source
	interval  time.Duration
	observers []Observer
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCollector creates a collector sampling source every interval
func NewCollector(source Source, interval time.Duration, observers ...Observer) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:    source,
		interval:  interval,
		observers: observers,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()

		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect samples the source once
func (c *Collector) Collect() {
	nodes := c.source.ListNodes()

	counts := map[types.NodeStatus]int{
		types.NodeStatusProvisioning: 0,
		types.NodeStatusHealthy:      0,
		types.NodeStatusUnhealthy:    0,
		types.NodeStatusUnreachable:  0,
		types.NodeStatusFailed:       0,
	}
	for _, node := range nodes {
		counts[node.Status]++
	}
	for status, count := range counts {
		NodesTotal.WithLabelValues(string(status)).Set(float64(count))
	}

	res := c.source.Resources()
	PodsTotal.WithLabelValues(string(types.PodStatusPending)).Set(float64(res.PendingPods))
	PodsTotal.WithLabelValues(string(types.PodStatusRunning)).Set(float64(res.PodCount - res.PendingPods))
	CPUCores.WithLabelValues("total").Set(res.TotalCPUCores)
	CPUCores.WithLabelValues("available").Set(res.AvailableCPUCores)

	for _, observe := range c.observers {
		observe(nodes)
	}
}
