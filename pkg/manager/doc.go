/*
Package manager implements the Burrow control plane facade.

The Manager owns the cluster store and wires the other components together:

	┌──────────────────────── MANAGER ────────────────────────┐
	│                                                          │
	│   AddNode / RemoveNode / CreatePod / DeletePod /         │
	│   Heartbeat / ListNodes / ListPods / Resources           │
	│        │                  │                              │
	│        ▼                  ▼                              │
	│   runtime.Provisioner   scheduler.Scheduler ──► storage  │
	│   (outside the lock)          ▲               MemoryStore│
	│                               │                  ▲       │
	│   reconciler.FailureDetector ─┴─► Coordinator ───┘       │
	│        every 10s                  every 10s              │
	└──────────────────────────┬───────────────────────────────┘
	                           ▼
	                    events.Broker ──► journal, kafka

# Node Lifecycle

AddNode provisions the node's container first and registers the node only
once that succeeds, as healthy with a heartbeat of now. A provisioning
failure registers nothing. Every added node triggers a pending-pod retry.

RemoveNode deprovisions first; if that fails the node is left untouched and
the error is returned. Otherwise the store deregisters the node and unbinds
its pods in one step, and the coordinator reschedules them away from it.
Removing an unknown node succeeds with Removed=false.

# Pod Lifecycle

CreatePod registers the pod pending and places it immediately. Lack of
capacity is not an error: the pod stays pending until the retry loop finds
room. DeletePod releases capacity and is idempotent.

# Background Loops

Start runs the failure detector and the pending retry loop until Stop. Both
use the configured clock, so tests drive them with a fake clock.
*/
package manager
