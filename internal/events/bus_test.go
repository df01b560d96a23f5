package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(Event{Type: DownloadCompleted, GUID: "ep1", File: "ep1.mp3"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		e := <-ch
		assert.Equal(t, DownloadCompleted, e.Type)
		assert.Equal(t, "ep1", e.GUID)
		assert.Equal(t, "ep1.mp3", e.File)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	// Overrun the subscriber's buffer without draining it. If Publish
	// blocked, this loop would deadlock the test.
	for i := 0; i < 200; i++ {
		b.Publish(Event{Type: DownloadProgress, GUID: "ep1", Progress: float64(i) / 200})
	}

	// The earliest events are still there; the overflow was dropped.
	e := <-ch
	assert.Equal(t, DownloadProgress, e.Type)
	assert.Len(t, ch, 63)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe()
	unsub()
	unsub() // safe to call twice

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{Type: EpisodePlayed, GUID: "ep1"})
}

func TestCloseDropsSubscribers(t *testing.T) {
	b := NewBus()

	ch, unsub := b.Subscribe()
	b.Close()
	b.Close() // idempotent

	_, open := <-ch
	require.False(t, open)
	unsub() // no-op after close

	// Subscribing to a closed bus yields an already-closed channel.
	late, cancel := b.Subscribe()
	defer cancel()
	_, open = <-late
	assert.False(t, open)
}
