/*
Package events provides the in-memory event broker for Burrow's cluster events.

Every lifecycle transition the manager and the reconcilers commit (node
registered, failed or removed, pod created, scheduled, left pending or
deleted, reschedule passes) is published as an Event. The broker fans events
out to subscribers without ever blocking the publisher:

	┌──────────────┐   Publish (non-blocking)   ┌─────────────────┐
	│   Manager    │ ─────────────────────────► │  Event channel  │
	│  Reconcilers │                            │  (buffer: 256)  │
	└──────────────┘                            └────────┬────────┘
	                                                     │ broadcast
	                          ┌──────────────────────────┼───────────────────┐
	                          ▼                          ▼                   ▼
	                   ┌─────────────┐          ┌────────────────┐   ┌─────────────┐
	                   │ Subscribers │          │ Journal (bbolt)│   │ Kafka topic │
	                   │  (buffer 64)│          │  via Forward   │   │ via Forward │
	                   └─────────────┘          └────────────────┘   └─────────────┘

Publishing happens on the paths that mutate cluster state, so a full queue
drops the event and counts it (Dropped) rather than stalling a state
transition. Slow subscribers miss events the same way.

# Sinks

A Sink receives events outside the broker. Forward subscribes a sink and
writes every event to it until the context ends; errors are logged and
forwarding continues. Wait on the channel Forward returns before closing
the sink. KafkaSink publishes JSON-encoded events keyed by pod or
node ID. The storage package's Journal is the other sink.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	done := broker.Forward(ctx, journal, logger)
	defer func() { cancel(); <-done; journal.Close() }()

	broker.Publish(&events.Event{Type: events.EventNodeFailed, NodeID: id})
*/
package events
