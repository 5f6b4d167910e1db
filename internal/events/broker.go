// Package events fans tab lifecycle events out to presentation-layer
// subscribers (window chrome, extension bridge, history collaborators).
package events

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Kind names a tab lifecycle event.
type Kind string

const (
	TabOpened     Kind = "tab.opened"
	TabActivated  Kind = "tab.activated"
	TabProperties Kind = "tab.properties"
	TabClosed     Kind = "tab.closed"
)

// Event is a single tab lifecycle notification. Delivery is best-effort and
// at-most-once per logical change; later events supersede earlier ones, so
// slow consumers simply see the latest state on their next read.
type Event struct {
	Kind    Kind   `json:"kind"`
	TabID   string `json:"tab_id"`
	Payload any    `json:"payload,omitempty"`
}

// Broker fans out events to all subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
