package reconciler

import (
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"k8s.io/utils/clock"
)

const (
	// DefaultProbeInterval is how often the failure detector sweeps nodes
	DefaultProbeInterval = 10 * time.Second

	// DefaultRetryInterval is how often pending pods are retried
	DefaultRetryInterval = 10 * time.Second

	// DefaultFailureThreshold is how long a node may go without a heartbeat
	DefaultFailureThreshold = 30 * time.Second
)

// Config holds the timing shared by the failure detector and the coordinator
type Config struct {
	Clock            clock.WithTicker
	ProbeInterval    time.Duration
	RetryInterval    time.Duration
	FailureThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	return c
}

// Publisher receives lifecycle events
type Publisher interface {
	Publish(event *events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(*events.Event) {}

func orNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// PublishOrphans reports every pod unbound from nodeID as pending
func PublishOrphans(p Publisher, nodeID string, podIDs []string, reason string) {
	p = orNop(p)
	for _, podID := range podIDs {
		p.Publish(&events.Event{
			Type:    events.EventPodPending,
			PodID:   podID,
			NodeID:  nodeID,
			Message: "pod unbound: " + reason,
		})
	}
}
