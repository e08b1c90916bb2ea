package scheduler

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Store is the part of the cluster store the scheduler reads and binds through
type Store interface {
	GetPod(id string) (*types.Pod, error)
	ListNodes() []*types.Node
	Bind(podID, nodeID string) error
}

// Publisher receives placement events. Only successful bindings are published.
type Publisher interface {
	Publish(event *events.Event)
}

// Scheduler places pending pods on the first healthy node with room
type Scheduler struct {
	store     Store
	publisher Publisher
	logger    zerolog.Logger
}

// NewScheduler creates a new scheduler. publisher may be nil.
func NewScheduler(store Store, publisher Publisher) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    log.WithComponent("scheduler"),
	}
}

// Schedule attempts to place the pod, skipping any node in exclude.
// A pod that fits nowhere stays pending and Schedule returns placed=false
// with a nil error. A pod that is already running reports its current node.
func (s *Scheduler) Schedule(podID string, exclude ...string) (string, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	pod, err := s.store.GetPod(podID)
	if err != nil {
		return "", false, err
	}
	if pod.Bound() {
		return pod.HostID(), true, nil
	}

	// Each retry follows a bind rejected because the node changed after the
	// snapshot, so the number of useful attempts is bounded by the node count.
	nodes := s.store.ListNodes()
	for attempt := 0; attempt <= len(nodes); attempt++ {
		node := FirstFit(pod, nodes, exclude)
		if node == nil {
			metrics.PodsUnschedulable.Inc()
			s.logger.Debug().
				Str("pod_id", podID).
				Float64("cpu_cores", pod.RequiredCPUCores).
				Msg("No node has capacity, pod stays pending")
			return "", false, nil
		}

		err := s.store.Bind(podID, node.ID)
		switch {
		case err == nil:
			metrics.PodsScheduled.Inc()
			s.logger.Info().
				Str("pod_id", podID).
				Str("node_id", node.ID).
				Float64("cpu_cores", pod.RequiredCPUCores).
				Msg("Pod scheduled")
			s.publish(events.EventPodScheduled, pod.ID, node.ID, "pod bound to node")
			return node.ID, true, nil

		case errors.Is(err, storage.ErrCapacityExceeded), errors.Is(err, storage.ErrNodeNotFound):
			s.logger.Debug().Err(err).Str("pod_id", podID).Str("node_id", node.ID).Msg("Bind lost a race, retrying")

		case errors.Is(err, storage.ErrPodAlreadyBound):
			current, getErr := s.store.GetPod(podID)
			if getErr != nil {
				return "", false, getErr
			}
			return current.HostID(), current.Bound(), nil

		default:
			return "", false, fmt.Errorf("failed to bind pod %s to node %s: %w", podID, node.ID, err)
		}

		nodes = s.store.ListNodes()
	}

	metrics.PodsUnschedulable.Inc()
	s.logger.Warn().Str("pod_id", podID).Msg("Placement retries exhausted, pod stays pending")
	return "", false, nil
}

// FirstFit returns the first node in the given order that is healthy, has
// room for the pod and is not excluded, or nil if none qualifies
func FirstFit(pod *types.Pod, nodes []*types.Node, exclude []string) *types.Node {
	for _, node := range nodes {
		if excluded(node.ID, exclude) {
			continue
		}
		if node.CanHost(pod.RequiredCPUCores) {
			return node
		}
	}
	return nil
}

func excluded(id string, exclude []string) bool {
	for _, ex := range exclude {
		if ex == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) publish(eventType events.EventType, podID, nodeID, message string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(&events.Event{
		Type:    eventType,
		PodID:   podID,
		NodeID:  nodeID,
		Message: message,
	})
}
