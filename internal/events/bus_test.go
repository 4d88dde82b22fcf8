package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Kind: KindJobTransition, Site: "alpha", To: "pending"})

	evA := <-a
	evB := <-b
	assert.Equal(t, KindJobTransition, evA.Kind)
	assert.Equal(t, evA.Site, evB.Site)
	assert.False(t, evA.Timestamp.IsZero(), "publish stamps the event")
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(1)

	// Second publish overflows the buffer and must be dropped, not block.
	bus.Publish(Event{Kind: KindPostingUpsert, CanonicalID: "a:1"})
	bus.Publish(Event{Kind: KindPostingUpsert, CanonicalID: "a:2"})

	ev := <-sub
	assert.Equal(t, "a:1", ev.CanonicalID)

	select {
	case _, ok := <-sub:
		assert.False(t, ok, "no second event should be buffered")
	default:
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	bus.Close()

	_, ok := <-sub
	require.False(t, ok)

	// Publishing after close is a no-op.
	bus.Publish(Event{Kind: KindJobTransition})
}
