package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// MemoryStore implements Store with in-memory registries guarded by one lock.
// Nodes and pods are kept in maps for lookup plus append-only ID slices that
// preserve registration order for first-fit scheduling.
type MemoryStore struct {
	mu        sync.RWMutex
	nodes     map[string]*types.Node
	nodeOrder []string
	pods      map[string]*types.Pod
	podOrder  []string

	strict bool
	logger zerolog.Logger
}

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithStrictInvariants makes the store panic when a mutation leaves the
// registries inconsistent instead of only logging the violation
func WithStrictInvariants() Option {
	return func(s *MemoryStore) {
		s.strict = true
	}
}

// NewMemoryStore creates an empty store
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		nodes:  make(map[string]*types.Node),
		pods:   make(map[string]*types.Pod),
		logger: log.WithComponent("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterNode adds a node with no bound pods
func (s *MemoryStore) RegisterNode(node *types.Node) error {
	if node.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if node.TotalCPUCores <= 0 {
		return ErrInvalidCapacity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return fmt.Errorf("%w: node %s", ErrDuplicateID, node.ID)
	}

	stored := *node
	stored.Pods = nil
	stored.AvailableCPUCores = 0
	if node.LastHeartbeat != nil {
		hb := *node.LastHeartbeat
		stored.LastHeartbeat = &hb
	}

	s.nodes[stored.ID] = &stored
	s.nodeOrder = append(s.nodeOrder, stored.ID)
	s.checkLocked("register node")
	return nil
}

// DeregisterNode removes a node and returns the IDs of the pods that were bound
// to it, in binding order. Those pods are left pending. The boolean is false if
// the node was not registered.
func (s *MemoryStore) DeregisterNode(id string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists {
		return nil, false
	}

	orphans := s.releaseAllLocked(node)
	delete(s.nodes, id)
	s.nodeOrder = removeID(s.nodeOrder, id)
	s.checkLocked("deregister node")
	return orphans, true
}

// GetNode returns a copy of the node
func (s *MemoryStore) GetNode(id string) (*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, exists := s.nodes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return s.snapshotNodeLocked(node), nil
}

// ListNodes returns copies of all nodes in registration order
func (s *MemoryStore) ListNodes() []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*types.Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		nodes = append(nodes, s.snapshotNodeLocked(s.nodes[id]))
	}
	return nodes
}

// RecordHeartbeat stores the heartbeat time and marks the node healthy.
// A failed node keeps its status; failure is terminal.
func (s *MemoryStore) RecordHeartbeat(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	node.LastHeartbeat = &at
	if node.Status != types.NodeStatusFailed {
		node.Status = types.NodeStatusHealthy
	}
	s.checkLocked("record heartbeat")
	return nil
}

// SetProbeStatus records an advisory status from a collaborator probe.
// It never moves a node into or out of failed. Returns true if the status changed.
func (s *MemoryStore) SetProbeStatus(id string, status types.NodeStatus) bool {
	if status == types.NodeStatusFailed {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists || node.Status == types.NodeStatusFailed || node.Status == status {
		return false
	}

	node.Status = status
	s.checkLocked("set probe status")
	return true
}

// FailStale transitions the node to failed if its last heartbeat is older than
// cutoff, unbinding every pod it hosts in the same step. It returns the unbound
// pod IDs and true only when this call performed the transition.
func (s *MemoryStore) FailStale(id string, cutoff time.Time) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists || node.Status == types.NodeStatusFailed {
		return nil, false
	}
	if node.LastHeartbeat == nil || !node.LastHeartbeat.Before(cutoff) {
		return nil, false
	}

	node.Status = types.NodeStatusFailed
	orphans := s.releaseAllLocked(node)
	s.checkLocked("fail node")
	return orphans, true
}

// RegisterPod adds an unbound pending pod
func (s *MemoryStore) RegisterPod(pod *types.Pod) error {
	if pod.ID == "" {
		return fmt.Errorf("pod id is required")
	}
	if pod.RequiredCPUCores <= 0 {
		return ErrInvalidCapacity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pods[pod.ID]; exists {
		return fmt.Errorf("%w: pod %s", ErrDuplicateID, pod.ID)
	}

	stored := *pod
	stored.NodeID = nil
	stored.Status = types.PodStatusPending

	s.pods[stored.ID] = &stored
	s.podOrder = append(s.podOrder, stored.ID)
	s.checkLocked("register pod")
	return nil
}

// DeregisterPod releases any capacity the pod holds and deletes it.
// Returns false if the pod was not registered.
func (s *MemoryStore) DeregisterPod(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pod, exists := s.pods[id]
	if !exists {
		return false
	}

	s.unbindLocked(pod)
	delete(s.pods, id)
	s.podOrder = removeID(s.podOrder, id)
	s.checkLocked("deregister pod")
	return true
}

// GetPod returns a copy of the pod
func (s *MemoryStore) GetPod(id string) (*types.Pod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pod, exists := s.pods[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPodNotFound, id)
	}
	return snapshotPod(pod), nil
}

// ListPods returns copies of all pods in creation order
func (s *MemoryStore) ListPods() []*types.Pod {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pods := make([]*types.Pod, 0, len(s.podOrder))
	for _, id := range s.podOrder {
		pods = append(pods, snapshotPod(s.pods[id]))
	}
	return pods
}

// ListPendingPods returns copies of the unbound pods in creation order
func (s *MemoryStore) ListPendingPods() []*types.Pod {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*types.Pod
	for _, id := range s.podOrder {
		if pod := s.pods[id]; pod.Status == types.PodStatusPending {
			pending = append(pending, snapshotPod(pod))
		}
	}
	return pending
}

// Bind places the pod on the node, reserving its cores in the same step.
// The node must be healthy with enough available cores.
func (s *MemoryStore) Bind(podID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pod, exists := s.pods[podID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPodNotFound, podID)
	}
	node, exists := s.nodes[nodeID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if pod.Bound() {
		return fmt.Errorf("%w: pod %s is on node %s", ErrPodAlreadyBound, podID, pod.HostID())
	}
	if node.Status != types.NodeStatusHealthy {
		return fmt.Errorf("%w: node %s is %s", ErrCapacityExceeded, nodeID, node.Status)
	}
	if available := s.availableLocked(node); !types.Fits(available, pod.RequiredCPUCores) {
		return fmt.Errorf("%w: node %s has %.2f cores available, pod %s requires %.2f",
			ErrCapacityExceeded, nodeID, available, podID, pod.RequiredCPUCores)
	}

	host := nodeID
	node.Pods = append(node.Pods, podID)
	pod.NodeID = &host
	pod.Status = types.PodStatusRunning
	s.checkLocked("bind")
	return nil
}

// Unbind releases the pod from its node and marks it pending.
// Unbinding a pod that has no host is a no-op.
func (s *MemoryStore) Unbind(podID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pod, exists := s.pods[podID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPodNotFound, podID)
	}

	s.unbindLocked(pod)
	s.checkLocked("unbind")
	return nil
}

// Resources folds the registries into cluster-wide totals. Failed nodes
// contribute to the node count only.
func (s *MemoryStore) Resources() types.ClusterResources {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res types.ClusterResources
	for _, id := range s.nodeOrder {
		node := s.nodes[id]
		res.NodeCount++
		if node.Status == types.NodeStatusFailed {
			continue
		}
		res.TotalCPUCores += node.TotalCPUCores
		res.AvailableCPUCores += s.availableLocked(node)
		if node.Status == types.NodeStatusHealthy {
			res.HealthyNodes++
		}
	}
	for _, pod := range s.pods {
		res.PodCount++
		if pod.Status == types.PodStatusPending {
			res.PendingPods++
		}
	}
	return res
}

// Verify checks the capacity and binding invariants across the whole store
func (s *MemoryStore) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifyLocked()
}

// releaseAllLocked unbinds every pod on the node and returns their IDs
func (s *MemoryStore) releaseAllLocked(node *types.Node) []string {
	orphans := make([]string, len(node.Pods))
	copy(orphans, node.Pods)

	for _, podID := range orphans {
		if pod, ok := s.pods[podID]; ok {
			pod.NodeID = nil
			pod.Status = types.PodStatusPending
		}
	}
	node.Pods = nil
	return orphans
}

func (s *MemoryStore) unbindLocked(pod *types.Pod) {
	if !pod.Bound() {
		return
	}
	if node, ok := s.nodes[pod.HostID()]; ok {
		node.Pods = removeID(node.Pods, pod.ID)
	}
	pod.NodeID = nil
	pod.Status = types.PodStatusPending
}

func (s *MemoryStore) availableLocked(node *types.Node) float64 {
	available := node.TotalCPUCores
	for _, podID := range node.Pods {
		if pod, ok := s.pods[podID]; ok {
			available -= pod.RequiredCPUCores
		}
	}
	return available
}

func (s *MemoryStore) snapshotNodeLocked(node *types.Node) *types.Node {
	cp := *node
	cp.Pods = make([]string, len(node.Pods))
	copy(cp.Pods, node.Pods)
	cp.AvailableCPUCores = s.availableLocked(node)
	if node.LastHeartbeat != nil {
		hb := *node.LastHeartbeat
		cp.LastHeartbeat = &hb
	}
	return &cp
}

func snapshotPod(pod *types.Pod) *types.Pod {
	cp := *pod
	if pod.NodeID != nil {
		host := *pod.NodeID
		cp.NodeID = &host
	}
	return &cp
}

// checkLocked runs after every mutation
func (s *MemoryStore) checkLocked(op string) {
	err := s.verifyLocked()
	if err == nil {
		return
	}
	s.logger.Error().Err(err).Str("op", op).Msg("Cluster invariant violated")
	if s.strict {
		panic(fmt.Sprintf("cluster invariant violated after %s: %v", op, err))
	}
}

func (s *MemoryStore) verifyLocked() error {
	if len(s.nodeOrder) != len(s.nodes) {
		return fmt.Errorf("node order has %d entries for %d nodes", len(s.nodeOrder), len(s.nodes))
	}
	if len(s.podOrder) != len(s.pods) {
		return fmt.Errorf("pod order has %d entries for %d pods", len(s.podOrder), len(s.pods))
	}

	for _, id := range s.nodeOrder {
		node := s.nodes[id]
		for _, podID := range node.Pods {
			pod, ok := s.pods[podID]
			if !ok {
				return fmt.Errorf("node %s lists unknown pod %s", id, podID)
			}
			if pod.Status != types.PodStatusRunning || pod.HostID() != id {
				return fmt.Errorf("node %s lists pod %s which is %s on %q", id, podID, pod.Status, pod.HostID())
			}
		}
		if available := s.availableLocked(node); !types.Fits(available, 0) {
			return fmt.Errorf("node %s has negative available capacity %.4f", id, available)
		}
	}

	for id, pod := range s.pods {
		switch pod.Status {
		case types.PodStatusRunning:
			node, ok := s.nodes[pod.HostID()]
			if !pod.Bound() || !ok {
				return fmt.Errorf("running pod %s is bound to missing node %q", id, pod.HostID())
			}
			if !containsID(node.Pods, id) {
				return fmt.Errorf("running pod %s not listed by node %s", id, node.ID)
			}
		case types.PodStatusPending:
			if pod.Bound() {
				return fmt.Errorf("pending pod %s points at node %s", id, pod.HostID())
			}
		default:
			return fmt.Errorf("pod %s has unknown status %q", id, pod.Status)
		}
	}
	return nil
}

func removeID(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
