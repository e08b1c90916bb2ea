/*
Package types defines the core data structures used throughout Burrow.

These types represent the control plane's domain model: nodes that contribute
CPU capacity, pods that request it, and the aggregate views computed from them.
They double as the JSON wire shapes of the HTTP API, so field names follow the
camelCase contract clients rely on.

# Core Types

  - Node: a unit of CPU capacity with a status, a heartbeat timestamp and the
    ordered list of pods bound to it
  - NodeStatus: provisioning, healthy, unhealthy, unreachable, failed
  - Pod: a workload requesting a fixed number of CPU cores
  - PodStatus: pending or running
  - PodView: a pod enriched with its host's status
  - ClusterResources: cluster-wide totals folded on demand from the registries
  - NodeDetail: the extended status view served by GET /nodes/{id}

# Invariants

For every node, AvailableCPUCores equals TotalCPUCores minus the cores required
by the pods in Pods. The storage package derives AvailableCPUCores on every
read, so a Node value obtained from the store always satisfies it.

A pod is running if and only if NodeID is set and that node lists the pod.

Only healthy nodes accept new bindings; failed is terminal.

# Thread Safety

Values in this package carry no locks. The store hands out deep copies, so
callers may read and modify what they receive without affecting cluster state.
*/
package types
