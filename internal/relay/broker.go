// Package relay fans scheduler display events out to streaming HTTP clients.
package relay

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBufSize = 256

// Event is a single message on a named feed. Payload is JSON.
type Event struct {
	Feed    string
	Payload string
}

// Broker fans out events to all subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]chan Event)}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// have events dropped. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	b.mu.Unlock()
	return id, ch
}

func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish is non-blocking.
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

// Close disconnects every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
