// Package events is the in-process publish/subscribe broker that L2/L3
// components use to deliver process-exit notifications and service/job
// lifecycle transitions. Every subscriber receives every published event;
// there is no per-name subscription, and Event.Subject names what the event
// is about.
package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	ProcessStateChanged EventType = "process.state_changed"
	ProcessExited       EventType = "process.exited"

	ServiceStateChanged EventType = "service.state_changed"
	ServiceStarted      EventType = "service.started"
	ServiceStopped      EventType = "service.stopped"
	ServiceFailed       EventType = "service.failed"
	ServiceRestarted    EventType = "service.restarted"

	JobStarted   EventType = "job.started"
	JobCompleted EventType = "job.completed"
	JobFailed    EventType = "job.failed"
)

// Event is one notification published to the broker.
type Event struct {
	ID        string
	Type      EventType
	Subject   string // service name, job name, or pid as string
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages subscriptions and fan-out. Every background loop in L2/L3
// publishes through one process-wide Broker rather than holding its own
// slice of callbacks; each subscriber receives every event.
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

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
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

	delete(b.subscribers, sub)
	close(sub)
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
			// Subscriber buffer full, skip.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
