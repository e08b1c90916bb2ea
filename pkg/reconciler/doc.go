/*
Package reconciler detects failed nodes and moves their pods elsewhere.

Two loops run on a shared clock (k8s.io/utils/clock, so tests can step
virtual time):

	FailureDetector.Run   every 10s: probe each node, fail stale ones
	Coordinator.Run       every 10s: retry every pending pod

# Failure Detection

A sweep visits nodes in registration order and skips nodes that are already
failed. For each node with a backing container it asks the runtime for a
probe result and records the implied status:

	healthy              -> healthy
	unhealthy, not_found -> unhealthy
	unreachable          -> unreachable

Probe results only affect status and schedulability. A node is failed solely
when its last heartbeat is older than the threshold (30s by default). The
store performs that transition and unbinds the node's pods in one step, and
the sweep hands the unbound pods to the coordinator. Failure is terminal: a
later heartbeat does not revive the node.

# Rescheduling

The coordinator runs passes triggered by node failure, node removal, node
addition and the retry timer. A single guard admits one pass at a time; a
trigger that arrives while a pass runs is dropped and counted in
burrow_reschedule_passes_total{result="dropped"}. Pods it would have handled
are already pending, so the next retry sweep picks them up.

Orphans from a node are placed in their binding order and are kept off that
node. Pods deleted mid-pass are skipped.
*/
package reconciler
