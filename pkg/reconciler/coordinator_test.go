package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func registerNode(t *testing.T, store *storage.MemoryStore, id string, cores float64, heartbeat time.Time) {
	t.Helper()
	require.NoError(t, store.RegisterNode(&types.Node{
		ID:            id,
		TotalCPUCores: cores,
		Status:        types.NodeStatusHealthy,
		LastHeartbeat: &heartbeat,
		ContainerID:   "ref-" + id,
	}))
}

func registerPod(t *testing.T, store *storage.MemoryStore, id string, cores float64) {
	t.Helper()
	require.NoError(t, store.RegisterPod(&types.Pod{ID: id, RequiredCPUCores: cores}))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingPublisher) Publish(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// blockingPlacer holds every Schedule call until released
type blockingPlacer struct {
	entered chan string
	release chan struct{}
}

func newBlockingPlacer() *blockingPlacer {
	return &blockingPlacer{entered: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingPlacer) Schedule(podID string, exclude ...string) (string, bool, error) {
	b.entered <- podID
	<-b.release
	return "", false, nil
}

type staticPending []*types.Pod

func (s staticPending) ListPendingPods() []*types.Pod { return s }

func TestRescheduleOrphansExcludesSourceNode(t *testing.T) {
	store := storage.NewMemoryStore(storage.WithStrictInvariants())
	registerNode(t, store, "a", 4, epoch)
	registerNode(t, store, "b", 4, epoch)
	registerPod(t, store, "p1", 2)
	registerPod(t, store, "p2", 2)

	publisher := &recordingPublisher{}
	c := NewCoordinator(scheduler.NewScheduler(store, nil), store, publisher, Config{})

	result := c.RescheduleOrphans(context.Background(), "a", []string{"p1", "p2"})
	assert.Equal(t, PassResult{Ran: true, Placed: 2}, result)

	for _, id := range []string{"p1", "p2"} {
		pod, err := store.GetPod(id)
		require.NoError(t, err)
		assert.Equal(t, "b", pod.HostID())
	}
	assert.Equal(t, []events.EventType{events.EventReschedulePass}, publisher.types())
}

func TestRescheduleOrphansSkipsVanishedPods(t *testing.T) {
	store := storage.NewMemoryStore(storage.WithStrictInvariants())
	registerNode(t, store, "b", 1, epoch)
	registerPod(t, store, "p1", 2)
	registerPod(t, store, "p3", 1)

	c := NewCoordinator(scheduler.NewScheduler(store, nil), store, nil, Config{})

	result := c.RescheduleOrphans(context.Background(), "a", []string{"p1", "ghost", "p3"})
	assert.Equal(t, PassResult{Ran: true, Placed: 1, Pending: 1}, result)

	pod, _ := store.GetPod("p1")
	assert.Equal(t, types.PodStatusPending, pod.Status)
}

func TestRetryPendingCreationOrder(t *testing.T) {
	store := storage.NewMemoryStore(storage.WithStrictInvariants())
	registerPod(t, store, "big", 3)
	registerPod(t, store, "small", 1)
	registerNode(t, store, "a", 3, epoch)

	c := NewCoordinator(scheduler.NewScheduler(store, nil), store, nil, Config{})
	result := c.RetryPending(context.Background())
	assert.Equal(t, PassResult{Ran: true, Placed: 1, Pending: 1}, result)

	big, _ := store.GetPod("big")
	assert.Equal(t, "a", big.HostID(), "earlier pod claims the capacity first")

	// Nothing pending means an empty pass
	store.DeregisterPod("small")
	assert.Equal(t, PassResult{Ran: true}, c.RetryPending(context.Background()))
}

func TestConcurrentTriggerDropped(t *testing.T) {
	placer := newBlockingPlacer()
	pending := staticPending{{ID: "p2", RequiredCPUCores: 1}}
	c := NewCoordinator(placer, pending, nil, Config{})

	done := make(chan PassResult)
	go func() {
		done <- c.RescheduleOrphans(context.Background(), "a", []string{"p1"})
	}()

	select {
	case podID := <-placer.entered:
		assert.Equal(t, "p1", podID)
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never started")
	}
	assert.True(t, c.Running())

	// Both triggers arrive while the first pass holds the guard
	assert.Equal(t, PassResult{}, c.RetryPending(context.Background()))
	assert.Equal(t, PassResult{}, c.RescheduleOrphans(context.Background(), "b", []string{"p9"}))

	close(placer.release)
	result := <-done
	assert.True(t, result.Ran)
	assert.Equal(t, 1, result.Pending)
	assert.False(t, c.Running())

	// Nothing from the dropped triggers ever reached the placer
	assert.Empty(t, placer.entered)

	// The guard is free again
	go func() { <-placer.entered }()
	assert.True(t, c.RetryPending(context.Background()).Ran)
}

func TestCoordinatorRunRetriesOnTick(t *testing.T) {
	store := storage.NewMemoryStore(storage.WithStrictInvariants())
	registerPod(t, store, "p1", 2)

	fakeClock := testingclock.NewFakeClock(epoch)
	c := NewCoordinator(scheduler.NewScheduler(store, nil), store, nil, Config{
		Clock:         fakeClock,
		RetryInterval: 10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, fakeClock.HasWaiters, 5*time.Second, 10*time.Millisecond)

	// Capacity shows up between ticks
	registerNode(t, store, "a", 4, epoch)
	fakeClock.Step(10 * time.Second)

	require.Eventually(t, func() bool {
		pod, err := store.GetPod("p1")
		return err == nil && pod.Status == types.PodStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
