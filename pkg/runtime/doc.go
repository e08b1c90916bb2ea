/*
Package runtime provisions the resources that back cluster nodes.

Each node is represented by one long-running container. The Provisioner
interface hides which engine runs it:

	DockerRuntime       container "node_<id>" on the local Docker daemon
	ContainerdRuntime   container "node_<id>" in the "burrow" containerd namespace
	SimulatedRuntime    in-memory, for --runtime none and tests

Every container runs `sleep infinity`, carries the label cluster.node.id and
is limited to the node's CPU cores (NanoCPUs on Docker, a CFS quota on
containerd).

# Expected Outcomes

Deprovision treats a container that is already exited, already being
removed, or gone as success. Only unexpected backend errors are returned.

Probe never returns an error. It reports one of:

	healthy       the container is running
	unhealthy     the container exists but is not running
	not_found     the container does not exist
	unreachable   the backend could not be asked

Probe results are advisory. They change a node's displayed status but never
fail a node; only missed heartbeats do that.
*/
package runtime
