/*
Package metrics provides Prometheus metrics and health reporting for Burrow.

All metrics are registered on the default Prometheus registry at package init
and exposed by Handler on /metrics.

# Metric Families

Cluster gauges, refreshed by Collector from the manager's view:

	burrow_nodes_total{status}          nodes per status
	burrow_pods_total{status}           pending and running pods
	burrow_cpu_cores{kind}              total and available cores (non-failed nodes)

Counters and histograms, updated inline by the components:

	burrow_api_requests_total{method,route,code}
	burrow_api_request_duration_seconds{method,route}
	burrow_scheduling_latency_seconds
	burrow_pods_scheduled_total
	burrow_pods_unschedulable_total
	burrow_node_failures_total
	burrow_heartbeats_total
	burrow_probe_results_total{result}
	burrow_failure_sweep_duration_seconds
	burrow_reschedule_passes_total{trigger,result}

# Timing Operations

	timer := metrics.NewTimer()
	nodeID, placed, err := s.Schedule(podID)
	timer.ObserveDuration(metrics.SchedulingLatency)

# Health

HealthChecker aggregates per-component health. /health reports unhealthy when
any component is unhealthy; /ready reports not_ready until the critical
components ("runtime" and "api" by default) are registered and healthy.

	metrics.UpdateComponent("runtime", true, "docker")
	mux.HandleFunc("/ready", metrics.ReadyHandler())

Collector accepts observers that receive each node snapshot, which the API
server uses to drive the gRPC health service.
*/
package metrics
