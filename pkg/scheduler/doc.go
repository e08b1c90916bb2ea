/*
Package scheduler places pods on nodes using first-fit over registration order.

# Placement

FirstFit walks nodes in the order they were registered and returns the first
one that is healthy, is not excluded, and has at least the pod's required
cores available. It is a pure function over a snapshot.

Schedule combines a snapshot with the store's atomic Bind:

	1. Load the pod; a running pod reports its current node
	2. Snapshot nodes and pick with FirstFit
	3. Bind; if the store rejects it because the node filled up or
	   stopped being healthy after the snapshot, re-snapshot and retry

Retries are bounded by the node count. A pod that fits nowhere stays pending
with no node; that is an expected outcome, not an error, and the reconciler's
retry sweep tries it again later.

The exclude list lets rescheduling keep orphaned pods off the node they were
just evicted from.

# Metrics

	burrow_scheduling_latency_seconds   time per Schedule call
	burrow_pods_scheduled_total         successful binds
	burrow_pods_unschedulable_total     attempts that left a pod pending
*/
package scheduler
