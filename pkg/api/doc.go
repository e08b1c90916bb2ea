/*
Package api exposes the burrow control plane over HTTP and gRPC.

The HTTP API is a JSON interface routed with gorilla/mux. It is the only
way external clients (the burrow CLI, dashboards, node agents) change
cluster state:

	POST   /nodes              {cpuCores}  → 201 Node
	GET    /nodes                          → []Node
	GET    /nodes/{id}                     → NodeDetail | 404
	DELETE /nodes/{id}                     → 200 (also for unknown IDs)
	POST   /pods               {cpuCores}  → 201 {pod, nodeId}
	GET    /pods                           → []PodView
	DELETE /pods/{id}                      → 200 (also for unknown IDs)
	POST   /heartbeat          {nodeId}    → 200 {status} | 404
	GET    /cluster/resources              → ClusterResources
	GET    /events?limit=N                 → []Event
	GET    /health, /ready, /metrics

Validation failures answer 400 with {error, suggestion}. A pod that fits
on no node is created pending and answered 201 with a null nodeId; lack
of capacity is never an error.

Every response carries permissive CORS headers and OPTIONS preflights are
answered with 200 for any path. Matched requests are logged at debug level
and counted in burrow_api_requests_total, labelled by route template so
IDs never become label values.

If the configured port is taken, Start tries the following ports up to a
bound, the way a development server would.

# gRPC health

HealthServer implements grpc.health.v1.Health on a separate listener. The
empty service name reports the process itself. The "burrow.scheduler"
service is SERVING iff at least one node is healthy; it is refreshed by
passing HealthServer.Observe to the metrics collector. Calls go through
MetricsInterceptor, which counts them in the same request metrics as HTTP.
*/
package api
