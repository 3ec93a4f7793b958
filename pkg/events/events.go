// Package events provides an internal fan-out bus used by the coordinator
// to notify secondary observers (such as the log tap) of state changes without
// coupling the coordinator loop to them directly. It is not used for the
// coordinator's own inbound work queue — that is a plain buffered channel
// owned by pkg/coordinator, since a work queue needs exactly one consumer
// and this bus is built for many.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies the kind of event carried on the bus.
type Type string

const (
	TypeAllowListUpdated  Type = "allow_list.updated"
	TypeUIDRevoked        Type = "uid.revoked"
	TypeCloudReachable    Type = "cloud.reachable"
	TypeCloudUnreachable  Type = "cloud.unreachable"
	TypeVoteRoundComplete Type = "vote.round_complete"
	TypeDecisionMade      Type = "decision.made"
)

// Event is a single notification posted to the bus.
type Event struct {
	Type      Type
	Timestamp time.Time
	Message   string
	Fields    map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans a published event out to every live subscriber.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// LogTap subscribes to the bus and logs every event at info level,
// giving operators tailing the edge's logs visibility into allow-list
// changes, revocations, and cloud reachability flips without coupling
// the coordinator loop itself to a logging call at every Publish site.
// The returned stop func unsubscribes and blocks until the tap's
// goroutine has drained and exited.
func (b *Broker) LogTap(logger zerolog.Logger) func() {
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range sub {
			logger.Info().
				Str("event", string(event.Type)).
				Str("message", event.Message).
				Time("event_time", event.Timestamp).
				Msg("coordinator event")
		}
	}()

	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}
