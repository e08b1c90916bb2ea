package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SimulatedRuntime keeps node resources in memory. It backs --runtime none
// and tests, and can inject faults into each call.
type SimulatedRuntime struct {
	mu        sync.Mutex
	resources map[string]ProbeResult
	byNode    map[string]string

	provisionErr   error
	deprovisionErr error
	unreachable    bool
}

// NewSimulatedRuntime creates an empty simulated runtime
func NewSimulatedRuntime() *SimulatedRuntime {
	return &SimulatedRuntime{
		resources: make(map[string]ProbeResult),
		byNode:    make(map[string]string),
	}
}

// Provision registers a healthy resource for the node
func (r *SimulatedRuntime) Provision(ctx context.Context, nodeID string, cpuCores float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unreachable {
		return "", ErrRuntimeUnavailable
	}
	if r.provisionErr != nil {
		return "", r.provisionErr
	}
	if _, exists := r.byNode[nodeID]; exists {
		return "", fmt.Errorf("container %s already exists", NodeContainerName(nodeID))
	}

	ref := uuid.New().String()
	r.resources[ref] = ProbeHealthy
	r.byNode[nodeID] = ref
	return ref, nil
}

// Deprovision forgets the resource. Unknown references succeed.
func (r *SimulatedRuntime) Deprovision(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unreachable {
		return ErrRuntimeUnavailable
	}
	if r.deprovisionErr != nil {
		return r.deprovisionErr
	}

	delete(r.resources, ref)
	for nodeID, nodeRef := range r.byNode {
		if nodeRef == ref {
			delete(r.byNode, nodeID)
		}
	}
	return nil
}

// Probe returns the stored result for the resource
func (r *SimulatedRuntime) Probe(ctx context.Context, ref string) ProbeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unreachable {
		return ProbeUnreachable
	}
	result, exists := r.resources[ref]
	if !exists {
		return ProbeNotFound
	}
	return result
}

// Name returns "none"
func (r *SimulatedRuntime) Name() string {
	return "none"
}

// Close is a no-op
func (r *SimulatedRuntime) Close() error {
	return nil
}

// SetProbeResult overrides what Probe reports for ref
func (r *SimulatedRuntime) SetProbeResult(ref string, result ProbeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result == ProbeNotFound {
		delete(r.resources, ref)
		return
	}
	r.resources[ref] = result
}

// FailProvision makes subsequent Provision calls return err; nil clears it
func (r *SimulatedRuntime) FailProvision(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisionErr = err
}

// FailDeprovision makes subsequent Deprovision calls return err; nil clears it
func (r *SimulatedRuntime) FailDeprovision(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deprovisionErr = err
}

// SetUnreachable simulates losing the backend entirely
func (r *SimulatedRuntime) SetUnreachable(unreachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = unreachable
}

// Count returns the number of live resources
func (r *SimulatedRuntime) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources)
}
