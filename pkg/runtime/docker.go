package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

// DefaultImage is the image every node container runs
const DefaultImage = "alpine"

// dockerAPI is the subset of the Docker client the runtime uses
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	Close() error
}

// DockerRuntime backs each node with a long-running container on the local Docker daemon
type DockerRuntime struct {
	cli         dockerAPI
	image       string
	stopTimeout int
	logger      zerolog.Logger
}

// NewDockerRuntime connects to the Docker daemon configured by the environment
// (DOCKER_HOST and friends). An empty image selects DefaultImage.
func NewDockerRuntime(image string) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerRuntime(cli, image), nil
}

func newDockerRuntime(cli dockerAPI, image string) *DockerRuntime {
	if image == "" {
		image = DefaultImage
	}
	return &DockerRuntime{
		cli:         cli,
		image:       image,
		stopTimeout: 10,
		logger:      log.WithComponent("runtime").With().Str("backend", "docker").Logger(),
	}
}

// Provision creates and starts the node container, pulling the image first if needed
func (r *DockerRuntime) Provision(ctx context.Context, nodeID string, cpuCores float64) (string, error) {
	if _, err := r.cli.Ping(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	if err := r.ensureImage(ctx); err != nil {
		return "", err
	}

	name := NodeContainerName(nodeID)
	resp, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  r.image,
			Cmd:    []string{"sleep", "infinity"},
			Labels: map[string]string{NodeLabel: nodeID},
		},
		&container.HostConfig{
			AutoRemove: true,
			Resources: container.Resources{
				NanoCPUs: int64(cpuCores * 1e9),
			},
		},
		nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", name, err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		if rmErr := r.cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true}); rmErr != nil {
			r.logger.Warn().Err(rmErr).Str("container_id", resp.ID).Msg("Failed to clean up container after start failure")
		}
		return "", fmt.Errorf("failed to start container %s: %w", name, err)
	}

	r.logger.Info().
		Str("node_id", nodeID).
		Str("container_id", resp.ID).
		Float64("cpu_cores", cpuCores).
		Msg("Node container started")
	return resp.ID, nil
}

func (r *DockerRuntime) ensureImage(ctx context.Context) error {
	_, _, err := r.cli.ImageInspectWithRaw(ctx, r.image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", r.image, err)
	}

	r.logger.Info().Str("image", r.image).Msg("Image not found locally, pulling")
	reader, err := r.cli.ImagePull(ctx, r.image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}
	defer reader.Close()

	// The pull completes only once the progress stream is drained
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}
	return nil
}

// Deprovision stops and removes the container. Containers that are already
// exited, being removed, or gone are treated as success.
func (r *DockerRuntime) Deprovision(ctx context.Context, ref string) error {
	logger := r.logger.With().Str("container_id", ref).Logger()

	info, err := r.cli.ContainerInspect(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			logger.Debug().Msg("Container already gone")
			return nil
		}
		return fmt.Errorf("failed to inspect container %s: %w", ref, err)
	}
	if state := containerState(info); state == "removing" || state == "exited" {
		logger.Debug().Str("state", state).Msg("Container already stopping")
		return nil
	}

	timeout := r.stopTimeout
	if err := r.cli.ContainerStop(ctx, ref, container.StopOptions{Timeout: &timeout}); err != nil {
		if !errdefs.IsNotModified(err) && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to stop container %s: %w", ref, err)
		}
	}

	if err := r.cli.ContainerRemove(ctx, ref, types.ContainerRemoveOptions{}); err != nil {
		// AutoRemove usually wins the race after stop
		if !errdefs.IsConflict(err) && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", ref, err)
		}
	}

	logger.Info().Msg("Node container removed")
	return nil
}

// Probe maps the container state to a probe result
func (r *DockerRuntime) Probe(ctx context.Context, ref string) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := r.cli.ContainerInspect(probeCtx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ProbeNotFound
		}
		r.logger.Debug().Err(err).Str("container_id", ref).Msg("Probe failed")
		return ProbeUnreachable
	}
	if containerState(info) == "running" {
		return ProbeHealthy
	}
	return ProbeUnhealthy
}

func containerState(info types.ContainerJSON) string {
	if info.ContainerJSONBase == nil || info.State == nil {
		return ""
	}
	return info.State.Status
}

// Name returns "docker"
func (r *DockerRuntime) Name() string {
	return "docker"
}

// Close closes the Docker client
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}
