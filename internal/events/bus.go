// Package events carries download and playback state changes to interested
// collaborators so they do not have to poll the store.
package events

import (
	"sync"
)

// Type identifies what happened to an episode.
type Type string

const (
	DownloadProgress  Type = "download.progress"
	DownloadCompleted Type = "download.completed"
	DownloadFailed    Type = "download.failed"
	DownloadCancelled Type = "download.cancelled"
	DownloadDeleted   Type = "download.deleted"
	EpisodePlayed     Type = "episode.played"
	QueueAdvanced     Type = "queue.advanced"
)

// Event is a single discrete state change for one episode.
type Event struct {
	Type     Type
	GUID     string
	Progress float64
	File     string
	NextGUID string
	Err      error
}

// Bus is a fan-out publisher. Publishing never blocks: a subscriber that
// falls behind its buffer misses events, matching the cadence contract for
// progress updates.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener and returns its channel along with a
// cancel function that drops the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, 64)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close drops all subscriptions and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
