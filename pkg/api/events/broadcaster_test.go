package events

import (
	"testing"
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishReachesSubscribers(t *testing.T) {
	b := NewBroadcaster()
	first := b.Subscribe(1)
	second := b.Subscribe(1)

	b.Publish(memory.EventMemoryCreated, map[string]any{"id": "m1"})

	for _, ch := range []chan Event{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, memory.EventMemoryCreated, event.Type)
			assert.False(t, event.Timestamp.IsZero())
			assert.Equal(t, "m1", event.Payload.(map[string]any)["id"])
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for broadcast event")
		}
	}
}

func TestBroadcaster_DropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.Publish(memory.EventEvolutionApplied, nil)
	b.Publish(memory.EventEvolutionRejected, nil)

	assert.Equal(t, uint64(1), b.Dropped())
	event := <-ch
	assert.Equal(t, memory.EventEvolutionApplied, event.Type)
}

func TestBroadcaster_UnsubscribeAndClose(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	require.Equal(t, 1, b.Subscribers())

	b.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok, "unsubscribed channel should be closed")
	b.Unsubscribe(ch)

	other := b.Subscribe(1)
	b.Close()
	_, ok = <-other
	assert.False(t, ok)
	assert.Zero(t, b.Subscribers())

	late := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")
	b.Publish(memory.EventMemoryForgotten, nil)
}
