package runtime

import (
	"context"
	"errors"
)

// ProbeResult is the outcome of checking a node's backing resource
type ProbeResult string

const (
	ProbeHealthy     ProbeResult = "healthy"
	ProbeUnhealthy   ProbeResult = "unhealthy"
	ProbeUnreachable ProbeResult = "unreachable"
	ProbeNotFound    ProbeResult = "not_found"
)

// ErrRuntimeUnavailable is returned when the backend cannot be reached
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// Provisioner creates and tears down the resource that backs a node.
// Calls may block on the backend and are never made while cluster state is locked.
type Provisioner interface {
	// Provision creates the backing resource and returns an opaque reference to it
	Provision(ctx context.Context, nodeID string, cpuCores float64) (string, error)

	// Deprovision removes the resource. A resource that is already stopped,
	// being removed, or gone is not an error.
	Deprovision(ctx context.Context, ref string) error

	// Probe reports the current state of the resource
	Probe(ctx context.Context, ref string) ProbeResult

	// Name identifies the backend in logs and health output
	Name() string

	Close() error
}

// NodeContainerName returns the container name used for a node
func NodeContainerName(nodeID string) string {
	return "node_" + nodeID
}

// NodeLabel is set on every container that backs a node
const NodeLabel = "cluster.node.id"
