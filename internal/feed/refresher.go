package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/csams/podcast-offline/internal/download"
	"github.com/csams/podcast-offline/internal/netstate"
	"github.com/csams/podcast-offline/internal/store"
)

// Refresher fetches subscribed feeds, inserts newly discovered episodes,
// and fires auto-download triggers for them.
type Refresher struct {
	client    *http.Client
	parser    *Parser
	userAgent string

	podcasts *store.PodcastRepository
	folders  *store.FolderRepository
	episodes *store.EpisodeRepository
	settings *store.SettingsRepository

	net   netstate.Classifier
	coord *download.Coordinator
}

// NewRefresher creates a refresher over the store.
func NewRefresher(s *store.Store, net netstate.Classifier, coord *download.Coordinator, userAgent string) *Refresher {
	return &Refresher{
		client:    &http.Client{Timeout: 2 * time.Minute},
		parser:    NewParser(),
		userAgent: userAgent,
		podcasts:  s.Podcasts(),
		folders:   s.Folders(),
		episodes:  s.Episodes(),
		settings:  s.Settings(),
		net:       net,
		coord:     coord,
	}
}

// RefreshAll refreshes every subscription. Per-feed failures are logged and
// do not affect the others. The global refresh timestamp is updated
// afterwards.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	podcasts, err := r.podcasts.List()
	if err != nil {
		return err
	}

	for _, p := range podcasts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Refresh(ctx, p); err != nil {
			log.WithError(err).WithField("feed", p.FeedURL).Warn("feed refresh failed")
		}
	}

	return r.settings.TouchRefreshed(time.Now())
}

// Refresh fetches one podcast's feed and upserts its episodes. New episodes
// of auto-download subscriptions are handed to the policy evaluator as
// automatic triggers.
func (r *Refresher) Refresh(ctx context.Context, p *store.Podcast) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.FeedURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create feed request")
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to fetch feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	meta, entries, err := r.parser.Parse(resp.Body)
	if err != nil {
		return err
	}

	if meta.Title != "" && meta.Title != p.Title {
		if err := r.podcasts.SetTitle(p.ID, meta.Title); err != nil {
			log.WithError(err).WithField("feed", p.FeedURL).Warn("failed to update podcast title")
		}
	}

	auto, err := r.autoDownload(p)
	if err != nil {
		return err
	}

	inserted := 0
	for _, entry := range entries {
		ep := &store.Episode{
			GUID:            entry.GUID,
			PodcastID:       p.ID,
			Title:           entry.Title,
			AudioURL:        entry.AudioURL,
			DurationSeconds: entry.DurationSeconds,
			PublishedAt:     entry.PublishedAt,
		}

		isNew, err := r.episodes.Upsert(ep)
		if err != nil {
			log.WithError(err).WithField("guid", entry.GUID).Warn("failed to upsert episode")
			continue
		}
		if !isNew {
			continue
		}
		inserted++

		if auto {
			r.triggerAutoDownload(ctx, ep, p)
		}
	}

	if err := r.podcasts.TouchFetched(p.ID, time.Now()); err != nil {
		return err
	}

	log.WithFields(log.Fields{"feed": p.FeedURL, "new": inserted}).Debug("feed refreshed")
	return nil
}

// autoDownload reports whether new episodes of this podcast should be
// fetched automatically, honoring the folder-level flag.
func (r *Refresher) autoDownload(p *store.Podcast) (bool, error) {
	if p.AutoDownload {
		return true, nil
	}
	if p.FolderID == nil {
		return false, nil
	}
	folder, err := r.folders.Get(*p.FolderID)
	if err != nil {
		return false, err
	}
	return folder != nil && folder.AutoDownload, nil
}

func (r *Refresher) triggerAutoDownload(ctx context.Context, ep *store.Episode, p *store.Podcast) {
	settings, err := r.settings.Get()
	if err != nil {
		log.WithError(err).Warn("failed to load settings for auto-download")
		return
	}

	decision := download.Check(download.Request{
		Episode:  ep,
		Auto:     true,
		Override: p.DownloadPreference,
	}, r.net.Classify(), settings)

	if decision != download.Started {
		log.WithFields(log.Fields{"guid": ep.GUID, "decision": decision.String()}).
			Debug("auto-download not started")
		return
	}

	if err := r.coord.Download(ctx, ep); err != nil {
		log.WithError(err).WithField("guid", ep.GUID).Warn("auto-download failed to start")
	}
}
