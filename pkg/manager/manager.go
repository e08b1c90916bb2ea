package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/runtime"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// ErrInvalidCores is returned when a requested core count is not a positive number
var ErrInvalidCores = errors.New("cpu cores must be a positive number")

// Config holds configuration for creating a Manager
type Config struct {
	// Runtime provisions node containers. Defaults to a SimulatedRuntime.
	Runtime runtime.Provisioner

	// Broker receives lifecycle events. Defaults to a broker owned by the manager.
	Broker *events.Broker

	// Clock drives heartbeats and both background loops. Defaults to the real clock.
	Clock clock.WithTicker

	ProbeInterval    time.Duration
	RetryInterval    time.Duration
	FailureThreshold time.Duration

	// StrictInvariants panics on any invariant violation instead of logging it
	StrictInvariants bool
}

// RemoveResult describes the outcome of removing a node
type RemoveResult struct {
	Removed     bool
	Orphaned    []string
	Rescheduled reconciler.PassResult
}

// Manager is the control plane facade. It owns the cluster store and wires
// the runtime, scheduler, failure detector and reschedule coordinator together.
type Manager struct {
	store       *storage.MemoryStore
	runtime     runtime.Provisioner
	broker      *events.Broker
	ownsBroker  bool
	clock       clock.WithTicker
	scheduler   *scheduler.Scheduler
	coordinator *reconciler.Coordinator
	detector    *reconciler.FailureDetector

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	logger zerolog.Logger
}

// NewManager creates a new Manager
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}

	var opts []storage.Option
	if cfg.StrictInvariants {
		opts = append(opts, storage.WithStrictInvariants())
	}
	store := storage.NewMemoryStore(opts...)

	rt := cfg.Runtime
	if rt == nil {
		rt = runtime.NewSimulatedRuntime()
	}

	broker := cfg.Broker
	ownsBroker := false
	if broker == nil {
		broker = events.NewBroker()
		broker.Start()
		ownsBroker = true
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	recCfg := reconciler.Config{
		Clock:            clk,
		ProbeInterval:    cfg.ProbeInterval,
		RetryInterval:    cfg.RetryInterval,
		FailureThreshold: cfg.FailureThreshold,
	}
	sched := scheduler.NewScheduler(store, broker)
	coordinator := reconciler.NewCoordinator(sched, store, broker, recCfg)
	detector := reconciler.NewFailureDetector(store, rt, coordinator, broker, recCfg)

	return &Manager{
		store:       store,
		runtime:     rt,
		broker:      broker,
		ownsBroker:  ownsBroker,
		clock:       clk,
		scheduler:   sched,
		coordinator: coordinator,
		detector:    detector,
		logger:      log.WithComponent("manager"),
	}
}

// Start launches the failure detector and the pending retry loop
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.detector.Run(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.coordinator.Run(ctx)
	}()

	m.logger.Info().Str("runtime", m.runtime.Name()).Msg("Manager started")
}

// Stop halts the background loops and waits for them to exit
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	if m.ownsBroker {
		m.broker.Stop()
	}
	m.logger.Info().Msg("Manager stopped")
}

// EventBroker returns the broker lifecycle events are published to
func (m *Manager) EventBroker() *events.Broker {
	return m.broker
}

// RuntimeName identifies the node runtime backend
func (m *Manager) RuntimeName() string {
	return m.runtime.Name()
}

// AddNode provisions a node container and registers the node as healthy.
// If provisioning fails nothing is registered. Pending pods are retried
// against the new capacity before AddNode returns.
func (m *Manager) AddNode(ctx context.Context, cpuCores float64) (*types.Node, error) {
	if !validCores(cpuCores) {
		return nil, ErrInvalidCores
	}

	id := uuid.New().String()
	logger := m.logger.With().Str("node_id", id).Logger()

	ref, err := m.runtime.Provision(ctx, id, cpuCores)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to provision node")
		return nil, fmt.Errorf("failed to provision node: %w", err)
	}

	now := m.clock.Now()
	node := &types.Node{
		ID:            id,
		TotalCPUCores: cpuCores,
		Status:        types.NodeStatusHealthy,
		LastHeartbeat: &now,
		ContainerID:   ref,
		CreatedAt:     now,
	}
	if err := m.store.RegisterNode(node); err != nil {
		if derr := m.runtime.Deprovision(ctx, ref); derr != nil {
			logger.Warn().Err(derr).Str("container_id", ref).Msg("Failed to clean up container of unregistered node")
		}
		return nil, fmt.Errorf("failed to register node: %w", err)
	}

	logger.Info().Float64("cpu_cores", cpuCores).Str("container_id", ref).Msg("Node registered")
	m.broker.Publish(&events.Event{
		Type:    events.EventNodeRegistered,
		NodeID:  id,
		Message: fmt.Sprintf("node with %.2f cores registered", cpuCores),
	})

	m.coordinator.RetryPending(ctx)
	return m.store.GetNode(id)
}

// RemoveNode deprovisions the node's container, deregisters the node and
// reschedules the pods it hosted. Removing an unknown node succeeds with
// Removed=false. If deprovisioning fails the node is left untouched.
func (m *Manager) RemoveNode(ctx context.Context, id string) (RemoveResult, error) {
	node, err := m.store.GetNode(id)
	if errors.Is(err, storage.ErrNodeNotFound) {
		return RemoveResult{}, nil
	}
	if err != nil {
		return RemoveResult{}, err
	}

	if node.ContainerID != "" {
		if err := m.runtime.Deprovision(ctx, node.ContainerID); err != nil {
			m.logger.Error().Err(err).Str("node_id", id).Msg("Failed to deprovision node")
			return RemoveResult{}, fmt.Errorf("failed to deprovision node %s: %w", id, err)
		}
	}

	orphans, existed := m.store.DeregisterNode(id)
	if !existed {
		return RemoveResult{}, nil
	}

	m.logger.Info().Str("node_id", id).Int("orphaned_pods", len(orphans)).Msg("Node removed")
	m.broker.Publish(&events.Event{
		Type:    events.EventNodeRemoved,
		NodeID:  id,
		Message: fmt.Sprintf("node removed with %d pods", len(orphans)),
	})
	reconciler.PublishOrphans(m.broker, id, orphans, "node removed")

	result := RemoveResult{Removed: true, Orphaned: orphans}
	if len(orphans) > 0 {
		// A dropped pass leaves the orphans pending for the retry loop
		result.Rescheduled = m.coordinator.RescheduleOrphans(ctx, id, orphans)
	}
	return result, nil
}

// CreatePod registers a pod and tries to place it immediately.
// A pod that fits nowhere is returned pending without error.
func (m *Manager) CreatePod(ctx context.Context, cpuCores float64) (*types.Pod, error) {
	if !validCores(cpuCores) {
		return nil, ErrInvalidCores
	}

	pod := &types.Pod{
		ID:               uuid.New().String(),
		RequiredCPUCores: cpuCores,
		CreatedAt:        m.clock.Now(),
	}
	if err := m.store.RegisterPod(pod); err != nil {
		return nil, fmt.Errorf("failed to register pod: %w", err)
	}

	m.logger.Debug().Str("pod_id", pod.ID).Float64("cpu_cores", cpuCores).Msg("Pod created")
	m.broker.Publish(&events.Event{
		Type:    events.EventPodCreated,
		PodID:   pod.ID,
		Message: fmt.Sprintf("pod requesting %.2f cores created", cpuCores),
	})

	_, placed, err := m.scheduler.Schedule(pod.ID)
	if err != nil && !errors.Is(err, storage.ErrPodNotFound) {
		m.logger.Error().Err(err).Str("pod_id", pod.ID).Msg("Failed to schedule pod")
	}
	if !placed && err == nil {
		m.broker.Publish(&events.Event{
			Type:    events.EventPodPending,
			PodID:   pod.ID,
			Message: fmt.Sprintf("no node has %.2f cores available", cpuCores),
		})
	}

	created, err := m.store.GetPod(pod.ID)
	if err != nil {
		// Deleted concurrently right after creation
		return pod, nil
	}
	return created, nil
}

// DeletePod releases the pod's capacity and deletes it. Returns false if the
// pod did not exist.
func (m *Manager) DeletePod(id string) bool {
	if !m.store.DeregisterPod(id) {
		return false
	}
	m.logger.Debug().Str("pod_id", id).Msg("Pod deleted")
	m.broker.Publish(&events.Event{
		Type:    events.EventPodDeleted,
		PodID:   id,
		Message: "pod deleted",
	})
	return true
}

// Heartbeat records that the node is alive
func (m *Manager) Heartbeat(id string) error {
	if err := m.store.RecordHeartbeat(id, m.clock.Now()); err != nil {
		return err
	}
	metrics.HeartbeatsTotal.Inc()
	return nil
}

// GetNode returns a node by ID
func (m *Manager) GetNode(id string) (*types.Node, error) {
	return m.store.GetNode(id)
}

// ListNodes returns all nodes in registration order
func (m *Manager) ListNodes() []*types.Node {
	return m.store.ListNodes()
}

// GetPod returns a pod by ID
func (m *Manager) GetPod(id string) (*types.Pod, error) {
	return m.store.GetPod(id)
}

// ListPods returns all pods in creation order with the status of their host
func (m *Manager) ListPods() []types.PodView {
	statuses := make(map[string]types.NodeStatus)
	for _, node := range m.store.ListNodes() {
		statuses[node.ID] = node.Status
	}

	pods := m.store.ListPods()
	views := make([]types.PodView, 0, len(pods))
	for _, pod := range pods {
		view := types.PodView{Pod: *pod}
		if status, ok := statuses[pod.HostID()]; ok && pod.Bound() {
			view.NodeStatus = &status
		}
		views = append(views, view)
	}
	return views
}

// Resources returns cluster-wide capacity totals
func (m *Manager) Resources() types.ClusterResources {
	return m.store.Resources()
}

// Sweep runs one failure detection pass immediately
func (m *Manager) Sweep(ctx context.Context) reconciler.SweepResult {
	return m.detector.Sweep(ctx)
}

// RetryPending runs one pending-pod pass immediately
func (m *Manager) RetryPending(ctx context.Context) reconciler.PassResult {
	return m.coordinator.RetryPending(ctx)
}

// Verify checks the cluster invariants
func (m *Manager) Verify() error {
	return m.store.Verify()
}

func validCores(cores float64) bool {
	return cores > 0 && !math.IsInf(cores, 0) && !math.IsNaN(cores)
}
