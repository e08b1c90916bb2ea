package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

const (
	triggerOrphans = "orphans"
	triggerRetry   = "retry"
)

// Placer places a single pod
type Placer interface {
	Schedule(podID string, exclude ...string) (string, bool, error)
}

// PendingSource lists pods that are waiting for a node
type PendingSource interface {
	ListPendingPods() []*types.Pod
}

// PassResult summarizes one reschedule pass
type PassResult struct {
	Ran     bool // false when the pass was dropped because another was running
	Placed  int
	Pending int
}

// Coordinator runs reschedule passes. At most one pass runs at a time; a
// trigger that arrives while a pass is in progress is dropped, and whatever
// it would have handled stays pending for the next retry sweep.
type Coordinator struct {
	placer    Placer
	pending   PendingSource
	publisher Publisher
	clock     clock.WithTicker
	interval  time.Duration
	running   atomic.Bool
	logger    zerolog.Logger
}

// NewCoordinator creates a coordinator. publisher may be nil.
func NewCoordinator(placer Placer, pending PendingSource, publisher Publisher, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		placer:    placer,
		pending:   pending,
		publisher: orNop(publisher),
		clock:     cfg.Clock,
		interval:  cfg.RetryInterval,
		logger:    log.WithComponent("coordinator"),
	}
}

// RescheduleOrphans tries to place pods evicted from nodeID, in the given
// order, keeping them off that node
func (c *Coordinator) RescheduleOrphans(ctx context.Context, nodeID string, podIDs []string) PassResult {
	result, ran := c.pass(ctx, triggerOrphans, podIDs, nodeID)
	if ran {
		c.logger.Info().
			Str("node_id", nodeID).
			Int("placed", result.Placed).
			Int("pending", result.Pending).
			Msg("Rescheduled orphaned pods")
	}
	return result
}

// RetryPending tries to place every pending pod in creation order
func (c *Coordinator) RetryPending(ctx context.Context) PassResult {
	pods := c.pending.ListPendingPods()
	ids := make([]string, 0, len(pods))
	for _, pod := range pods {
		ids = append(ids, pod.ID)
	}

	result, ran := c.pass(ctx, triggerRetry, ids, "")
	if ran && result.Placed > 0 {
		c.logger.Info().
			Int("placed", result.Placed).
			Int("pending", result.Pending).
			Msg("Placed pending pods")
	}
	return result
}

// Running reports whether a pass is in progress
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run retries pending pods every interval until ctx is done
func (c *Coordinator) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			c.RetryPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) pass(ctx context.Context, trigger string, podIDs []string, exclude string) (PassResult, bool) {
	if !c.running.CompareAndSwap(false, true) {
		metrics.ReschedulePasses.WithLabelValues(trigger, "dropped").Inc()
		c.logger.Debug().Str("trigger", trigger).Int("pods", len(podIDs)).Msg("Reschedule pass already running, trigger dropped")
		return PassResult{}, false
	}
	defer c.running.Store(false)
	metrics.ReschedulePasses.WithLabelValues(trigger, "ran").Inc()

	var excludes []string
	if exclude != "" {
		excludes = []string{exclude}
	}

	result := PassResult{Ran: true}
	for _, podID := range podIDs {
		if ctx.Err() != nil {
			break
		}

		_, placed, err := c.placer.Schedule(podID, excludes...)
		switch {
		case errors.Is(err, storage.ErrPodNotFound):
			// Deleted since the pass started
			continue
		case err != nil:
			c.logger.Warn().Err(err).Str("pod_id", podID).Msg("Failed to reschedule pod")
			result.Pending++
		case placed:
			result.Placed++
		default:
			result.Pending++
		}
	}

	if len(podIDs) > 0 {
		c.publisher.Publish(&events.Event{
			Type:    events.EventReschedulePass,
			NodeID:  exclude,
			Message: fmt.Sprintf("%s pass placed %d of %d pods", trigger, result.Placed, result.Placed+result.Pending),
			Metadata: map[string]string{
				"trigger": trigger,
				"placed":  strconv.Itoa(result.Placed),
				"pending": strconv.Itoa(result.Pending),
			},
		})
	}
	return result, true
}
