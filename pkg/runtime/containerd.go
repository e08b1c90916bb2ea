package runtime

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/cuemby/burrow/pkg/log"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"
)

const (
	// DefaultNamespace is the containerd namespace for Burrow
	DefaultNamespace = "burrow"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// DefaultContainerdImage is the fully qualified image node containers run
	DefaultContainerdImage = "docker.io/library/alpine:latest"

	cpuPeriod uint64 = 100000
)

// ContainerdRuntime backs each node with a containerd task
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
	image     string
	logger    zerolog.Logger
}

// NewContainerdRuntime connects to containerd. Empty arguments select the defaults.
func NewContainerdRuntime(socketPath, namespace, image string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if image == "" {
		image = DefaultContainerdImage
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: namespace,
		image:     image,
		logger:    log.WithComponent("runtime").With().Str("backend", "containerd").Logger(),
	}, nil
}

// Provision creates the node container with a CPU quota and starts its task
func (r *ContainerdRuntime) Provision(ctx context.Context, nodeID string, cpuCores float64) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if serving, err := r.client.IsServing(ctx); err != nil || !serving {
		return "", fmt.Errorf("%w: containerd is not serving", ErrRuntimeUnavailable)
	}

	image, err := r.client.GetImage(ctx, r.image)
	if errdefs.IsNotFound(err) {
		r.logger.Info().Str("image", r.image).Msg("Image not found locally, pulling")
		image, err = r.client.Pull(ctx, r.image, containerd.WithPullUnpack)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", r.image, err)
	}

	id := NodeContainerName(nodeID)
	container, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithProcessArgs("sleep", "infinity"),
			withCPUQuota(cpuCores),
		),
		containerd.WithContainerLabels(map[string]string{NodeLabel: nodeID}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", id, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("failed to start task: %w", err)
	}

	r.logger.Info().
		Str("node_id", nodeID).
		Str("container_id", id).
		Float64("cpu_cores", cpuCores).
		Msg("Node container started")
	return id, nil
}

// withCPUQuota limits the container to cores CPUs through the CFS quota
func withCPUQuota(cores float64) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *oci.Spec) error {
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}
		if s.Linux.Resources == nil {
			s.Linux.Resources = &specs.LinuxResources{}
		}
		quota := int64(cores * float64(cpuPeriod))
		period := cpuPeriod
		s.Linux.Resources.CPU = &specs.LinuxCPU{
			Quota:  &quota,
			Period: &period,
		}
		return nil
	}
}

// Deprovision kills the task and deletes the container with its snapshot.
// A missing container or task is not an error.
func (r *ContainerdRuntime) Deprovision(ctx context.Context, ref string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load container %s: %w", ref, err)
	}

	if task, err := container.Task(ctx, nil); err == nil {
		if err := r.stopTask(ctx, task); err != nil {
			return err
		}
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to load task %s: %w", ref, err)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete container %s: %w", ref, err)
	}

	r.logger.Info().Str("container_id", ref).Msg("Node container removed")
	return nil
}

func (r *ContainerdRuntime) stopTask(ctx context.Context, task containerd.Task) error {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to kill task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// Probe maps the task status to a probe result
func (r *ContainerdRuntime) Probe(ctx context.Context, ref string) ProbeResult {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	container, err := r.client.LoadContainer(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ProbeNotFound
		}
		return ProbeUnreachable
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return ProbeUnhealthy
	}

	status, err := task.Status(ctx)
	if err != nil {
		return ProbeUnreachable
	}
	if status.Status == containerd.Running {
		return ProbeHealthy
	}
	return ProbeUnhealthy
}

// Name returns "containerd"
func (r *ContainerdRuntime) Name() string {
	return "containerd"
}

// Close closes the containerd client connection
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
