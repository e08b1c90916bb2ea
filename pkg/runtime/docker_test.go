package runtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	pingErr    error
	imageErr   error
	pulled     []string
	created    []*container.Config
	hostConfig *container.HostConfig
	names      []string
	startErr   error
	inspect    map[string]types.ContainerJSON
	inspectErr error
	stopErr    error
	removeErr  error
	stopped    []string
	removed    []string
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeDocker) ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error) {
	return types.ImageInspect{}, nil, f.imageErr
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.created = append(f.created, config)
	f.hostConfig = hostConfig
	f.names = append(f.names, containerName)
	return container.CreateResponse{ID: "cid-" + containerName}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error {
	return f.startErr
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	if f.inspectErr != nil {
		return types.ContainerJSON{}, f.inspectErr
	}
	info, ok := f.inspect[containerID]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
	}
	return info, nil
}

func (f *fakeDocker) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.stopped = append(f.stopped, containerID)
	return f.stopErr
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error {
	f.removed = append(f.removed, containerID)
	return f.removeErr
}

func (f *fakeDocker) Close() error { return nil }

func withState(status string) types.ContainerJSON {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Status: status},
		},
	}
}

func TestDockerProvision(t *testing.T) {
	fake := &fakeDocker{}
	r := newDockerRuntime(fake, "")

	ref, err := r.Provision(context.Background(), "n1", 1.5)
	require.NoError(t, err)
	assert.Equal(t, "cid-node_n1", ref)

	require.Len(t, fake.created, 1)
	assert.Equal(t, DefaultImage, fake.created[0].Image)
	assert.Equal(t, []string{"sleep", "infinity"}, []string(fake.created[0].Cmd))
	assert.Equal(t, "n1", fake.created[0].Labels[NodeLabel])
	assert.True(t, fake.hostConfig.AutoRemove)
	assert.Equal(t, int64(1_500_000_000), fake.hostConfig.NanoCPUs)
	assert.Empty(t, fake.pulled, "image already present")
}

func TestDockerProvisionPullsMissingImage(t *testing.T) {
	fake := &fakeDocker{imageErr: errdefs.NotFound(errors.New("no such image"))}
	r := newDockerRuntime(fake, "alpine:3.20")

	_, err := r.Provision(context.Background(), "n1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpine:3.20"}, fake.pulled)
}

func TestDockerProvisionDaemonDown(t *testing.T) {
	fake := &fakeDocker{pingErr: errors.New("connection refused")}
	r := newDockerRuntime(fake, "")

	_, err := r.Provision(context.Background(), "n1", 1)
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.Empty(t, fake.created)
}

func TestDockerProvisionStartFailureCleansUp(t *testing.T) {
	fake := &fakeDocker{startErr: errors.New("oci runtime error")}
	r := newDockerRuntime(fake, "")

	_, err := r.Provision(context.Background(), "n1", 1)
	assert.Error(t, err)
	assert.Equal(t, []string{"cid-node_n1"}, fake.removed)
}

func TestDockerDeprovision(t *testing.T) {
	tests := []struct {
		name        string
		fake        *fakeDocker
		wantErr     bool
		wantStopped bool
	}{
		{
			name:        "running container stopped and removed",
			fake:        &fakeDocker{inspect: map[string]types.ContainerJSON{"c1": withState("running")}},
			wantStopped: true,
		},
		{
			name: "container already gone",
			fake: &fakeDocker{},
		},
		{
			name: "container already exited",
			fake: &fakeDocker{inspect: map[string]types.ContainerJSON{"c1": withState("exited")}},
		},
		{
			name: "removal in progress",
			fake: &fakeDocker{inspect: map[string]types.ContainerJSON{"c1": withState("removing")}},
		},
		{
			name: "stop reports not modified",
			fake: &fakeDocker{
				inspect: map[string]types.ContainerJSON{"c1": withState("running")},
				stopErr: errdefs.NotModified(errors.New("already stopped")),
			},
			wantStopped: true,
		},
		{
			name: "remove conflicts with auto-remove",
			fake: &fakeDocker{
				inspect:   map[string]types.ContainerJSON{"c1": withState("running")},
				removeErr: errdefs.Conflict(errors.New("removal in progress")),
			},
			wantStopped: true,
		},
		{
			name: "remove finds nothing",
			fake: &fakeDocker{
				inspect:   map[string]types.ContainerJSON{"c1": withState("running")},
				removeErr: errdefs.NotFound(errors.New("no such container")),
			},
			wantStopped: true,
		},
		{
			name:    "daemon error on inspect",
			fake:    &fakeDocker{inspectErr: errors.New("connection refused")},
			wantErr: true,
		},
		{
			name: "unexpected stop error",
			fake: &fakeDocker{
				inspect: map[string]types.ContainerJSON{"c1": withState("running")},
				stopErr: errdefs.System(errors.New("daemon crashed")),
			},
			wantErr:     true,
			wantStopped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newDockerRuntime(tt.fake, "").Deprovision(context.Background(), "c1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStopped, len(tt.fake.stopped) == 1)
		})
	}
}

func TestDockerProbe(t *testing.T) {
	fake := &fakeDocker{inspect: map[string]types.ContainerJSON{
		"up":     withState("running"),
		"paused": withState("paused"),
		"dead":   withState("exited"),
	}}
	r := newDockerRuntime(fake, "")
	ctx := context.Background()

	assert.Equal(t, ProbeHealthy, r.Probe(ctx, "up"))
	assert.Equal(t, ProbeUnhealthy, r.Probe(ctx, "paused"))
	assert.Equal(t, ProbeUnhealthy, r.Probe(ctx, "dead"))
	assert.Equal(t, ProbeNotFound, r.Probe(ctx, "missing"))

	fake.inspectErr = errors.New("connection refused")
	assert.Equal(t, ProbeUnreachable, r.Probe(ctx, "up"))
}
