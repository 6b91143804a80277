package service

import (
	"sync"

	"digraph/internal/domain"
)

// EventType defines the type of event
type EventType string

const (
	EventNodeAdded           EventType = "node_added"
	EventNodeRemoved         EventType = "node_removed"
	EventNodeMoved           EventType = "node_moved"
	EventNodeRenamed         EventType = "node_renamed"
	EventEdgeAdded           EventType = "edge_added"
	EventEdgeRemoved         EventType = "edge_removed"
	EventSelectionChanged    EventType = "selection_changed"
	EventPinInserted         EventType = "pin_inserted"
	EventPinRemoved          EventType = "pin_removed"
	EventGraphReset          EventType = "graph_reset"
	EventGraphResetCompleted EventType = "graph_reset_completed"
)

// Event is a change notification emitted by the Controller. Only the fields
// relevant to Type are set; node, edge and pin values are copies.
type Event struct {
	Type      EventType    `json:"type"`
	Node      *domain.Node `json:"node,omitempty"`
	Edge      *domain.Edge `json:"edge,omitempty"`
	Pin       *domain.Pin  `json:"pin,omitempty"`
	Selection []string     `json:"selection,omitempty"`
	Path      string       `json:"path,omitempty"`
	Err       error        `json:"-"`
}

// Failure returns the failure message of a GraphResetCompleted event, or an
// empty string
func (e Event) Failure() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Handler receives events synchronously
type Handler func(Event)

// Subscription is the handle returned by Subscribe
type Subscription struct {
	bus *EventBus
	id  uint64
}

// Unsubscribe stops delivery. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.id)
}

type subscriber struct {
	id      uint64
	handler Handler
}

// EventBus delivers events to subscribers in registration order on the
// publishing goroutine
type EventBus struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers []subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]subscriber, 0),
	}
}

// Subscribe registers a handler called synchronously for every event
func (eb *EventBus) Subscribe(h Handler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	eb.subscribers = append(eb.subscribers, subscriber{id: eb.nextID, handler: h})
	return &Subscription{bus: eb, id: eb.nextID}
}

// SubscribeChan forwards events to ch without blocking. Events are dropped
// for a subscriber whose channel is full.
func (eb *EventBus) SubscribeChan(ch chan<- Event) *Subscription {
	return eb.Subscribe(func(event Event) {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	})
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subs := make([]subscriber, len(eb.subscribers))
	copy(subs, eb.subscribers)
	eb.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Len returns the number of subscribers
func (eb *EventBus) Len() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

func (eb *EventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, s := range eb.subscribers {
		if s.id == id {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}
