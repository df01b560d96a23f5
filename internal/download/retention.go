package download

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/csams/podcast-offline/internal/store"
)

// Enforcer applies the storage-cap and per-podcast retention limits by
// evicting the least-relevant completed downloads. Eviction is pure
// cleanup: it removes files and download records, never played or starred
// flags.
type Enforcer struct {
	episodes *store.EpisodeRepository
	settings *store.SettingsRepository
	coord    *Coordinator

	// nowPlaying supplies the guid of the episode currently selected for
	// playback, which is never evicted. May be nil.
	nowPlaying func() string
}

// NewEnforcer creates a retention enforcer.
func NewEnforcer(episodes *store.EpisodeRepository, settings *store.SettingsRepository, coord *Coordinator, nowPlaying func() string) *Enforcer {
	return &Enforcer{episodes: episodes, settings: settings, coord: coord, nowPlaying: nowPlaying}
}

// Run applies both limits. Zero values disable each limit.
func (e *Enforcer) Run() error {
	settings, err := e.settings.Get()
	if err != nil {
		return err
	}
	if settings.StorageLimitBytes == 0 && settings.EpisodesPerPodcast == 0 {
		return nil
	}

	downloaded, err := e.episodes.ListDownloaded()
	if err != nil {
		return err
	}

	var playing string
	if e.nowPlaying != nil {
		playing = e.nowPlaying()
	}

	var candidates []*store.Episode
	for _, ep := range downloaded {
		if ep.Starred || ep.GUID == playing {
			continue
		}
		candidates = append(candidates, ep)
	}
	sortByRelevance(candidates)

	evicted := make(map[string]bool)

	if settings.EpisodesPerPodcast > 0 {
		e.enforcePodcastLimit(downloaded, candidates, settings.EpisodesPerPodcast, evicted)
	}

	if settings.StorageLimitBytes > 0 {
		if err := e.enforceStorageCap(candidates, settings.StorageLimitBytes, evicted); err != nil {
			return err
		}
	}

	return nil
}

// sortByRelevance orders candidates least-relevant first: played episodes
// before unplayed ones, then oldest published date first.
func sortByRelevance(eps []*store.Episode) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Played != eps[j].Played {
			return eps[i].Played
		}
		pi, pj := eps[i].PublishedAt, eps[j].PublishedAt
		switch {
		case pi == nil && pj == nil:
			return false
		case pi == nil:
			return true
		case pj == nil:
			return false
		default:
			return pi.Before(*pj)
		}
	})
}

func (e *Enforcer) enforcePodcastLimit(downloaded, candidates []*store.Episode, limit int, evicted map[string]bool) {
	counts := make(map[string]int)
	for _, ep := range downloaded {
		counts[ep.PodcastID]++
	}

	for _, ep := range candidates {
		if counts[ep.PodcastID] <= limit {
			continue
		}
		if err := e.evict(ep, evicted); err != nil {
			log.WithError(err).WithField("guid", ep.GUID).Warn("retention eviction failed")
			continue
		}
		counts[ep.PodcastID]--
	}
}

func (e *Enforcer) enforceStorageCap(candidates []*store.Episode, limit int64, evicted map[string]bool) error {
	total, err := e.coord.TotalSize()
	if err != nil {
		return err
	}

	for _, ep := range candidates {
		if total <= limit {
			break
		}
		if evicted[ep.GUID] {
			continue
		}
		size := e.coord.downloadSize(ep)
		if err := e.evict(ep, evicted); err != nil {
			log.WithError(err).WithField("guid", ep.GUID).Warn("retention eviction failed")
			continue
		}
		total -= size
	}

	if total > limit {
		log.WithFields(log.Fields{"used": total, "limit": limit}).
			Info("storage still over cap; remaining downloads are starred or in use")
	}
	return nil
}

func (e *Enforcer) evict(ep *store.Episode, evicted map[string]bool) error {
	if err := e.coord.DeleteDownload(ep); err != nil {
		return err
	}
	evicted[ep.GUID] = true
	log.WithFields(log.Fields{"guid": ep.GUID, "title": ep.Title}).Info("evicted download")
	return nil
}
