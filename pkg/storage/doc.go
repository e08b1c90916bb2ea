/*
Package storage holds Burrow's cluster state registry and its event journal.

# MemoryStore

MemoryStore is the single owner of cluster state. It keeps nodes and pods in
maps for lookup and in append-only ID slices for deterministic iteration:
nodes in registration order (first-fit depends on it) and pods in creation
order (the pending retry sweep depends on it).

Every mutation runs under one store-wide lock. Operations that must appear
atomic to readers are single store calls:

  - Bind reserves capacity and records the binding in one step, and rejects
    nodes that are not healthy or lack room (ErrCapacityExceeded)
  - FailStale moves a node with an expired heartbeat to failed and unbinds
    its pods in one step; it is the only way a node becomes failed
  - DeregisterNode unbinds the node's pods and deletes it in one step

A node's available cores are never stored. They are derived from its bound
pods on every read, and Resources folds cluster totals the same way, so no
aggregate can drift from per-node truth.

After each mutation the store verifies its invariants. Violations are logged;
with WithStrictInvariants they panic, which tests use to fail fast.

Readers receive deep copies and may modify them freely.

# Journal

Journal is an append-only BoltDB log of cluster events, fed through
events.Broker.Forward. It exists for auditing and the GET /events endpoint.
The control plane never reloads state from it.
*/
package storage
