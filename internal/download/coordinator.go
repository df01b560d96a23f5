package download

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/csams/podcast-offline/internal/events"
	"github.com/csams/podcast-offline/internal/store"
)

// progressInterval is the minimum spacing between persisted progress
// updates per episode. Reports at or above finalProgress always go through
// so completion feedback is never delayed.
const (
	progressInterval = 300 * time.Millisecond
	finalProgress    = 0.99
)

// transfer is the ephemeral record of one in-flight fetch. It exists only
// while the transfer is active; the throttle timestamp lives here so it is
// discarded together with the transfer on every terminal path.
type transfer struct {
	cancel     context.CancelFunc
	lastReport time.Time
}

// Coordinator owns the mapping from episode guid to active transfer and
// enforces at most one transfer per episode process-wide.
type Coordinator struct {
	mu        sync.Mutex
	transfers map[string]*transfer

	episodes *store.EpisodeRepository
	fetcher  *Fetcher
	bus      *events.Bus

	// onComplete runs after each successful completion, outside the lock.
	// The retention enforcer hooks in here.
	onComplete func(guid string)
}

// NewCoordinator creates a transfer coordinator.
func NewCoordinator(episodes *store.EpisodeRepository, fetcher *Fetcher, bus *events.Bus) *Coordinator {
	return &Coordinator{
		transfers: make(map[string]*transfer),
		episodes:  episodes,
		fetcher:   fetcher,
		bus:       bus,
	}
}

// OnComplete registers a hook invoked after each successful download.
func (c *Coordinator) OnComplete(fn func(guid string)) {
	c.onComplete = fn
}

// Active reports whether a transfer is tracked for the guid.
func (c *Coordinator) Active(guid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.transfers[guid]
	return ok
}

// ActiveCount returns the number of in-flight transfers.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transfers)
}

// Download starts fetching the episode's media. It is a silent no-op when a
// transfer is already tracked for the guid or the episode already has a
// local file; policy evaluation is the caller's job.
func (c *Coordinator) Download(ctx context.Context, ep *store.Episode) error {
	if ep.Downloaded() {
		return nil
	}

	c.mu.Lock()
	if _, exists := c.transfers[ep.GUID]; exists {
		c.mu.Unlock()
		return nil
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.transfers[ep.GUID] = &transfer{cancel: cancel}
	c.mu.Unlock()

	if err := c.episodes.SetProgress(ep.GUID, 0); err != nil {
		c.drop(ep.GUID)
		cancel()
		return err
	}
	c.bus.Publish(events.Event{Type: events.DownloadProgress, GUID: ep.GUID, Progress: 0})

	go c.run(fetchCtx, ep)
	return nil
}

func (c *Coordinator) run(ctx context.Context, ep *store.Episode) {
	logger := log.WithFields(log.Fields{"guid": ep.GUID, "title": ep.Title})
	filename := MediaFilename(ep.GUID)

	// Best-effort size probe so progress fractions exist even when the GET
	// response lacks a length.
	knownTotal, _ := c.fetcher.Size(ctx, ep.AudioURL)

	err := c.fetcher.Fetch(ctx, ep.AudioURL, filename, func(current, total int64) {
		if total == 0 {
			total = knownTotal
		}
		if total <= 0 {
			return
		}
		fraction := float64(current) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
		c.reportProgress(ep.GUID, fraction)
	})

	if err != nil {
		dropped := c.drop(ep.GUID)
		if clearErr := c.episodes.ClearProgress(ep.GUID); clearErr != nil {
			logger.WithError(clearErr).Warn("failed to clear progress after transfer ended")
		}
		if ctx.Err() != nil {
			// Cancelled transfers are expected and not an error. Cancel()
			// already published when it dropped the entry first.
			if dropped {
				c.bus.Publish(events.Event{Type: events.DownloadCancelled, GUID: ep.GUID})
			}
			return
		}
		logger.WithError(err).Warn("download failed")
		c.bus.Publish(events.Event{Type: events.DownloadFailed, GUID: ep.GUID, Err: err})
		return
	}

	var size int64
	if stat, statErr := os.Stat(filepath.Join(c.fetcher.Dir(), filename)); statErr == nil {
		size = stat.Size()
	}

	c.drop(ep.GUID)
	if err := c.episodes.CompleteDownload(ep.GUID, filename, size, time.Now()); err != nil {
		logger.WithError(err).Error("failed to record download completion")
		return
	}

	logger.Info("download completed")
	c.bus.Publish(events.Event{Type: events.DownloadCompleted, GUID: ep.GUID, File: filename})

	if c.onComplete != nil {
		c.onComplete(ep.GUID)
	}
}

// reportProgress writes a throttled progress update. A late callback from a
// transfer that is no longer tracked is suppressed entirely so a cancelled
// episode's state cannot be clobbered.
func (c *Coordinator) reportProgress(guid string, fraction float64) {
	c.mu.Lock()
	t, ok := c.transfers[guid]
	if !ok {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	if fraction < finalProgress && now.Sub(t.lastReport) < progressInterval {
		c.mu.Unlock()
		return
	}
	t.lastReport = now
	c.mu.Unlock()

	if err := c.episodes.SetProgress(guid, fraction); err != nil {
		log.WithError(err).WithField("guid", guid).Warn("failed to persist progress")
		return
	}

	// Cancel may have cleared the row between the check above and the
	// write. Re-check and undo so the cancelled state sticks.
	if !c.Active(guid) {
		if err := c.episodes.ClearProgress(guid); err != nil {
			log.WithError(err).WithField("guid", guid).Warn("failed to clear progress after cancel")
		}
		return
	}
	c.bus.Publish(events.Event{Type: events.DownloadProgress, GUID: guid, Progress: fraction})
}

// drop removes the transfer entry (and with it the throttle bookkeeping)
// and reports whether one was present.
func (c *Coordinator) drop(guid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.transfers[guid]; !ok {
		return false
	}
	delete(c.transfers, guid)
	return true
}

// Shutdown cancels every active transfer without clearing their progress
// rows; the reconciler repairs those on the next startup, and partial temp
// data stays available for resume.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for guid, t := range c.transfers {
		t.cancel()
		delete(c.transfers, guid)
	}
}

// Cancel stops an active transfer and clears its progress. Idempotent when
// nothing is tracked. Partial temp data is kept so a later download can
// resume.
func (c *Coordinator) Cancel(guid string) error {
	c.mu.Lock()
	t, ok := c.transfers[guid]
	if ok {
		delete(c.transfers, guid)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}

	t.cancel()
	if err := c.episodes.ClearProgress(guid); err != nil {
		return err
	}

	log.WithField("guid", guid).Info("download cancelled")
	c.bus.Publish(events.Event{Type: events.DownloadCancelled, GUID: guid})
	return nil
}

// DeleteDownload removes the episode's local file and clears its record.
// Idempotent: deleting an episode with no download succeeds silently.
func (c *Coordinator) DeleteDownload(ep *store.Episode) error {
	if ep.LocalFile == nil {
		return nil
	}

	path := filepath.Join(c.fetcher.Dir(), *ep.LocalFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove downloaded file")
	}

	if err := c.episodes.ClearLocalFile(ep.GUID); err != nil {
		return err
	}

	c.bus.Publish(events.Event{Type: events.DownloadDeleted, GUID: ep.GUID})
	return nil
}

// DeleteForPodcast removes every downloaded file belonging to the podcast.
// Each episode's deletion is independently idempotent, so a partially
// completed pass is safe to resume.
func (c *Coordinator) DeleteForPodcast(podcastID string) error {
	eps, err := c.episodes.ListByPodcast(podcastID)
	if err != nil {
		return err
	}
	return c.deleteAll(eps)
}

// DeleteAll removes every completed download.
func (c *Coordinator) DeleteAll() error {
	eps, err := c.episodes.ListDownloaded()
	if err != nil {
		return err
	}
	return c.deleteAll(eps)
}

func (c *Coordinator) deleteAll(eps []*store.Episode) error {
	var result *multierror.Error
	for _, ep := range eps {
		if err := c.DeleteDownload(ep); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "episode %s", ep.GUID))
		}
	}
	return result.ErrorOrNil()
}

// TotalSize returns the bytes used by completed downloads, ignoring partial
// temp data.
func (c *Coordinator) TotalSize() (int64, error) {
	var total int64
	err := filepath.Walk(c.fetcher.Dir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) == ".tmp" {
			return nil
		}
		total += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return total, errors.Wrap(err, "failed to measure downloads directory")
}

// downloadSize returns the episode's recorded download size, falling back to
// the file on disk when the record is zero (the completion-time stat can
// fail without failing the download).
func (c *Coordinator) downloadSize(ep *store.Episode) int64 {
	if ep.DownloadSize > 0 || ep.LocalFile == nil {
		return ep.DownloadSize
	}
	stat, err := os.Stat(filepath.Join(c.fetcher.Dir(), *ep.LocalFile))
	if err != nil {
		return 0
	}
	return stat.Size()
}

// MediaFilename derives the stable on-disk filename for an episode from its
// guid alone, so re-downloads land on the same name and transfers for
// different episodes never share a path.
func MediaFilename(guid string) string {
	safe := true
	for _, r := range guid {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			continue
		}
		safe = false
		break
	}

	if !safe || guid == "" || len(guid) > 100 || strings.HasSuffix(guid, ".") {
		// Feed guids are frequently URLs; hash those into a fixed-width
		// name instead of sanitizing, which could collide. Guids ending
		// in a dot hash too: stripping the dot would collide with the
		// dotless guid.
		sum := sha256.Sum256([]byte(guid))
		return fmt.Sprintf("%x.mp3", sum[:16])
	}
	return guid + ".mp3"
}
