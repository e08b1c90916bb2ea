package types

import (
	"time"
)

// Node represents a unit of CPU capacity that hosts pods.
// AvailableCPUCores is derived from the bound pods on every read and never stored.
type Node struct {
	ID                string     `json:"id"`
	TotalCPUCores     float64    `json:"totalCpuCores"`
	AvailableCPUCores float64    `json:"availableCpuCores"`
	Pods              []string   `json:"pods"` // Bound pod IDs in binding order
	Status            NodeStatus `json:"status"`
	LastHeartbeat     *time.Time `json:"-"` // Served only in NodeDetail
	ContainerID       string     `json:"containerId"` // Collaborator resource reference
	CreatedAt         time.Time  `json:"-"`
}

// NodeStatus represents the current state of a node
type NodeStatus string

const (
	NodeStatusProvisioning NodeStatus = "provisioning"
	NodeStatusHealthy      NodeStatus = "healthy"
	NodeStatusUnhealthy    NodeStatus = "unhealthy"
	NodeStatusUnreachable  NodeStatus = "unreachable"
	NodeStatusFailed       NodeStatus = "failed"
)

// Schedulable reports whether the node accepts new pod bindings
func (n *Node) Schedulable() bool {
	return n.Status == NodeStatusHealthy
}

// CanHost reports whether the node is healthy and has room for the given cores
func (n *Node) CanHost(cores float64) bool {
	return n.Schedulable() && Fits(n.AvailableCPUCores, cores)
}

// cpuEpsilon absorbs float rounding when fractional core counts are summed
const cpuEpsilon = 1e-9

// Fits reports whether required cores fit into available cores
func Fits(available, required float64) bool {
	return available+cpuEpsilon >= required
}

// UsedCPUCores returns the cores reserved by bound pods
func (n *Node) UsedCPUCores() float64 {
	return n.TotalCPUCores - n.AvailableCPUCores
}

// Pod represents a workload unit requesting a fixed number of CPU cores
type Pod struct {
	ID               string    `json:"id"`
	RequiredCPUCores float64   `json:"requiredCpuCores"`
	NodeID           *string   `json:"nodeId"` // Set iff the pod is bound
	Status           PodStatus `json:"status"`
	CreatedAt        time.Time `json:"-"`
}

// PodStatus represents the state of a pod
type PodStatus string

const (
	PodStatusPending PodStatus = "pending"
	PodStatusRunning PodStatus = "running"
)

// Bound reports whether the pod currently points at a node
func (p *Pod) Bound() bool {
	return p.NodeID != nil
}

// HostID returns the bound node ID or an empty string
func (p *Pod) HostID() string {
	if p.NodeID == nil {
		return ""
	}
	return *p.NodeID
}

// PodView is a pod enriched with the status of its current host
type PodView struct {
	Pod
	NodeStatus *NodeStatus `json:"nodeStatus"`
}

// ClusterResources is an aggregate view folded from the node and pod registries
type ClusterResources struct {
	TotalCPUCores     float64 `json:"totalCpuCores"`
	AvailableCPUCores float64 `json:"availableCpuCores"`
	NodeCount         int     `json:"nodeCount"`
	HealthyNodes      int     `json:"healthyNodes"`
	PodCount          int     `json:"podCount"`
	PendingPods       int     `json:"pendingPods"`
}

// NodeDetail is the extended status view of a single node
type NodeDetail struct {
	ID            string     `json:"id"`
	Status        NodeStatus `json:"status"`
	CPU           CPUUsage   `json:"cpu"`
	Pods          []string   `json:"pods"`
	LastHeartbeat *time.Time `json:"lastHeartbeat"`
	ContainerID   string     `json:"containerId"`
}

// CPUUsage breaks down a node's CPU capacity
type CPUUsage struct {
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
	Used      float64 `json:"used"`
}

// Detail builds the extended status view of the node
func (n *Node) Detail() NodeDetail {
	pods := n.Pods
	if pods == nil {
		pods = []string{}
	}
	return NodeDetail{
		ID:     n.ID,
		Status: n.Status,
		CPU: CPUUsage{
			Total:     n.TotalCPUCores,
			Available: n.AvailableCPUCores,
			Used:      n.UsedCPUCores(),
		},
		Pods:          pods,
		LastHeartbeat: n.LastHeartbeat,
		ContainerID:   n.ContainerID,
	}
}
