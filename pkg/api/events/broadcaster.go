// Package events fans memory lifecycle events out to in-process
// subscribers such as the websocket stream.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
)

// Event is the canonical event payload broadcast to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers. Slow
// subscribers lose events rather than block the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
	dropped     atomic.Uint64
	now         func() time.Time
}

var _ memory.EventPublisher = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe subscribes to events with a buffered channel. After Close the
// returned channel is already closed.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish implements memory.EventPublisher.
func (b *Broadcaster) Publish(eventType string, payload any) {
	b.Broadcast(Event{Type: eventType, Payload: payload})
}

// Broadcast sends event to every subscriber with room in its buffer.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	// The read lock is held while sending so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
