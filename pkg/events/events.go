package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType represents the type of event
type EventType string

const (
	EventNodeRegistered EventType = "node.registered"
	EventNodeRemoved    EventType = "node.removed"
	EventNodeFailed     EventType = "node.failed"
	EventNodeStatus     EventType = "node.status"
	EventPodCreated     EventType = "pod.created"
	EventPodScheduled   EventType = "pod.scheduled"
	EventPodPending     EventType = "pod.pending"
	EventPodDeleted     EventType = "pod.deleted"
	EventReschedulePass EventType = "reschedule.pass"
)

// Event represents a cluster event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	NodeID    string            `json:"nodeId,omitempty"`
	PodID     string            `json:"podId,omitempty"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Key returns the partitioning key of the event: the pod if any, else the node
func (e *Event) Key() string {
	if e.PodID != "" {
		return e.PodID
	}
	return e.NodeID
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Sink consumes events outside the broker, e.g. a journal or a message bus
type Sink interface {
	Write(ctx context.Context, event *Event) error
}

const (
	queueSize      = 256
	subscriberSize = 64
)

// Broker fans published events out to subscribers from a single goroutine.
// Slow subscribers miss events rather than stall the broker.
type Broker struct {
	mu       sync.RWMutex
	subs     map[Subscriber]struct{}
	queue    chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// NewBroker returns a broker; call Start to begin delivery
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[Subscriber]struct{}),
		queue:  make(chan *Event, queueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the delivery loop
func (b *Broker) Start() {
	go b.deliver()
}

// Stop stops the broker. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a buffered channel that receives every later event
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe closes sub. Unknown or already removed channels are ignored.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish queues an event for distribution. It never blocks: callers publish
// while committing state transitions, so a full queue drops the event.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Forward subscribes the sink and writes every event to it until ctx is done
// or the broker stops. Sink errors are logged and never stop forwarding.
// The returned channel is closed once the sink will not be written again.
func (b *Broker) Forward(ctx context.Context, sink Sink, logger zerolog.Logger) <-chan struct{} {
	sub := b.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer b.Unsubscribe(sub)
		for {
			select {
			case event, ok := <-sub:
				if !ok {
					return
				}
				if err := sink.Write(ctx, event); err != nil {
					logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to write event to sink")
				}
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			}
		}
	}()
	return done
}

func (b *Broker) deliver() {
	for {
		select {
		case <-b.stopCh:
			return
		case event := <-b.queue:
			b.mu.RLock()
			for sub := range b.subs {
				select {
				case sub <- event:
				default:
				}
			}
			b.mu.RUnlock()
		}
	}
}

// SubscriberCount reports how many subscriptions are open
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return n
}
