package reconciler

import (
	"context"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/runtime"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// NodeStore is the part of the cluster store the failure detector drives
type NodeStore interface {
	ListNodes() []*types.Node
	SetProbeStatus(id string, status types.NodeStatus) bool
	FailStale(id string, cutoff time.Time) ([]string, bool)
}

// Prober checks the resource backing a node
type Prober interface {
	Probe(ctx context.Context, ref string) runtime.ProbeResult
}

// Rescheduler takes over pods orphaned by a failed node
type Rescheduler interface {
	RescheduleOrphans(ctx context.Context, nodeID string, podIDs []string) PassResult
}

// SweepResult summarizes one failure detection sweep
type SweepResult struct {
	Probed int
	Failed []string
}

// FailureDetector probes node resources and fails nodes whose heartbeat expired
type FailureDetector struct {
	store       NodeStore
	prober      Prober
	rescheduler Rescheduler
	publisher   Publisher
	clock       clock.WithTicker
	interval    time.Duration
	threshold   time.Duration
	logger      zerolog.Logger
}

// NewFailureDetector creates a detector. prober and publisher may be nil.
func NewFailureDetector(store NodeStore, prober Prober, rescheduler Rescheduler, publisher Publisher, cfg Config) *FailureDetector {
	cfg = cfg.withDefaults()
	return &FailureDetector{
		store:       store,
		prober:      prober,
		rescheduler: rescheduler,
		publisher:   orNop(publisher),
		clock:       cfg.Clock,
		interval:    cfg.ProbeInterval,
		threshold:   cfg.FailureThreshold,
		logger:      log.WithComponent("failure-detector"),
	}
}

// Sweep checks every node once, in registration order
func (d *FailureDetector) Sweep(ctx context.Context) SweepResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SweepDuration)

	var result SweepResult
	for _, node := range d.store.ListNodes() {
		if ctx.Err() != nil {
			break
		}
		if node.Status == types.NodeStatusFailed {
			continue
		}

		if node.ContainerID != "" && d.prober != nil {
			d.probe(ctx, node)
			result.Probed++
		}

		// The cutoff is taken after the probe so a heartbeat that arrived
		// while probing is not judged against a stale clock
		cutoff := d.clock.Now().Add(-d.threshold)
		orphans, failed := d.store.FailStale(node.ID, cutoff)
		if !failed {
			continue
		}

		result.Failed = append(result.Failed, node.ID)
		metrics.NodeFailures.Inc()
		d.logger.Warn().
			Str("node_id", node.ID).
			Int("orphaned_pods", len(orphans)).
			Dur("threshold", d.threshold).
			Msg("Node missed heartbeats, marked failed")
		d.publisher.Publish(&events.Event{
			Type:    events.EventNodeFailed,
			NodeID:  node.ID,
			Message: "no heartbeat within " + d.threshold.String(),
		})

		PublishOrphans(d.publisher, node.ID, orphans, "node failed")

		if len(orphans) > 0 && d.rescheduler != nil {
			d.rescheduler.RescheduleOrphans(ctx, node.ID, orphans)
		}
	}
	return result
}

func (d *FailureDetector) probe(ctx context.Context, node *types.Node) {
	result := d.prober.Probe(ctx, node.ContainerID)
	metrics.ProbeResults.WithLabelValues(string(result)).Inc()

	status := ProbeStatus(result)
	if !d.store.SetProbeStatus(node.ID, status) {
		return
	}

	d.logger.Info().
		Str("node_id", node.ID).
		Str("probe", string(result)).
		Str("status", string(status)).
		Msg("Node status changed")
	d.publisher.Publish(&events.Event{
		Type:     events.EventNodeStatus,
		NodeID:   node.ID,
		Message:  "node is " + string(status),
		Metadata: map[string]string{"probe": string(result)},
	})
}

// ProbeStatus maps a probe result to the node status it implies.
// No probe result ever implies failed.
func ProbeStatus(result runtime.ProbeResult) types.NodeStatus {
	switch result {
	case runtime.ProbeHealthy:
		return types.NodeStatusHealthy
	case runtime.ProbeUnreachable:
		return types.NodeStatusUnreachable
	default:
		return types.NodeStatusUnhealthy
	}
}

// Run sweeps every interval until ctx is done
func (d *FailureDetector) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			d.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}
