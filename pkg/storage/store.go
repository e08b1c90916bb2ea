package storage

import (
	"errors"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

var (
	// ErrNodeNotFound is returned when a node ID is not registered
	ErrNodeNotFound = errors.New("node not found")

	// ErrPodNotFound is returned when a pod ID is not registered
	ErrPodNotFound = errors.New("pod not found")

	// ErrCapacityExceeded is returned by Bind when the target node is not healthy
	// or lacks the cores the pod requires
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrPodAlreadyBound is returned by Bind for a pod that already has a host
	ErrPodAlreadyBound = errors.New("pod already bound")

	// ErrDuplicateID is returned when registering an ID that already exists
	ErrDuplicateID = errors.New("duplicate id")

	// ErrInvalidCapacity is returned for non-positive core counts
	ErrInvalidCapacity = errors.New("cpu cores must be positive")
)

// Store defines the cluster state registry.
// Implementations serialize every mutation and keep capacity accounting
// atomic with binding changes.
type Store interface {
	// Nodes
	RegisterNode(node *types.Node) error
	DeregisterNode(id string) ([]string, bool)
	GetNode(id string) (*types.Node, error)
	ListNodes() []*types.Node
	RecordHeartbeat(id string, at time.Time) error
	SetProbeStatus(id string, status types.NodeStatus) bool
	FailStale(id string, cutoff time.Time) ([]string, bool)

	// Pods
	RegisterPod(pod *types.Pod) error
	DeregisterPod(id string) bool
	GetPod(id string) (*types.Pod, error)
	ListPods() []*types.Pod
	ListPendingPods() []*types.Pod

	// Bindings
	Bind(podID, nodeID string) error
	Unbind(podID string) error

	// Aggregates
	Resources() types.ClusterResources
}
