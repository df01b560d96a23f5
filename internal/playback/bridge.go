// Package playback keeps played flags, playback position, and queue
// membership consistent with what the external playback transport reports.
// It never talks to the audio layer itself.
package playback

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/csams/podcast-offline/internal/events"
	"github.com/csams/podcast-offline/internal/store"
)

// Bridge reacts to playback events and user actions on played state.
// Cleanup of played auto-downloads is deliberately left to the retention
// enforcer's next pass; the bridge only flips flags and publishes the fact.
type Bridge struct {
	mu      sync.RWMutex
	playing string

	episodes *store.EpisodeRepository
	queue    *store.QueueRepository
	bus      *events.Bus
}

// NewBridge creates a playback bridge.
func NewBridge(episodes *store.EpisodeRepository, queue *store.QueueRepository, bus *events.Bus) *Bridge {
	return &Bridge{episodes: episodes, queue: queue, bus: bus}
}

// SetPlaying records which episode the transport is currently playing.
// An empty guid means playback stopped.
func (b *Bridge) SetPlaying(guid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = guid
}

// Playing returns the guid of the episode currently selected for playback.
func (b *Bridge) Playing() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.playing
}

// UpdatePosition persists the playback position reported by the transport.
func (b *Bridge) UpdatePosition(guid string, seconds float64) error {
	return b.episodes.SetPosition(guid, seconds)
}

// HandleFinished runs when the transport reports an episode finished
// playing: the played flag is set and, when the episode is queued, the
// queue advances past it. It returns the guid of the next queue entry, or
// empty when the queue is exhausted or the episode was not queued.
func (b *Bridge) HandleFinished(guid string) (string, error) {
	next, err := b.markPlayed(guid)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	if b.playing == guid {
		b.playing = next
	}
	b.mu.Unlock()

	return next, nil
}

// MarkPlayed runs when the user marks an episode played from a menu, while
// it is not necessarily playing. Same state transition as HandleFinished
// but without touching the transport's current selection unless it matches.
func (b *Bridge) MarkPlayed(guid string) (string, error) {
	return b.markPlayed(guid)
}

// MarkUnplayed clears the played flag.
func (b *Bridge) MarkUnplayed(guid string) error {
	return b.episodes.MarkPlayed(guid, false)
}

func (b *Bridge) markPlayed(guid string) (string, error) {
	if err := b.episodes.MarkPlayed(guid, true); err != nil {
		return "", err
	}

	next, advanced, err := b.advanceQueue(guid)
	if err != nil {
		// The played flag is already set; queue drift here is repaired by
		// the next explicit queue operation.
		log.WithError(err).WithField("guid", guid).Warn("failed to advance queue")
	}

	b.bus.Publish(events.Event{Type: events.EpisodePlayed, GUID: guid})
	if advanced {
		b.bus.Publish(events.Event{Type: events.QueueAdvanced, GUID: guid, NextGUID: next})
	}

	return next, nil
}

// advanceQueue removes the finished episode from the queue and reports the
// entry that follows it. Not being queued is a no-op.
func (b *Bridge) advanceQueue(guid string) (string, bool, error) {
	entries, err := b.queue.List()
	if err != nil {
		return "", false, err
	}

	idx := -1
	for i, entry := range entries {
		if entry.EpisodeGUID == guid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false, nil
	}

	if err := b.queue.Remove(guid); err != nil {
		return "", false, err
	}

	next := ""
	if idx+1 < len(entries) {
		next = entries[idx+1].EpisodeGUID
	}
	return next, true, nil
}
