/*
Package health provides the local checks a node agent runs before it sends
a heartbeat.

A node that stops heartbeating for longer than the failure threshold is
failed by the control plane and its pods are rescheduled. The agent uses a
Gate to turn local workload health into exactly that signal: while the gate
is open heartbeats flow; after a number of consecutive rounds with a failing
check the gate closes and heartbeats stop, so the node is failed on the
next sweep past the threshold. One fully passing round reopens the gate.

Two checkers are available:

  - HTTPChecker: GET a URL, pass on a status in [StatusMin, StatusMax]
  - TCPChecker: open a TCP connection to an address

ParseCheck builds either from a URL, which is how the agent's --check flag
is interpreted:

	burrow agent --node-id $ID --check http://localhost:8080/healthz --check tcp://localhost:6379
*/
package health
