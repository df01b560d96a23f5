package download

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/csams/podcast-offline/internal/store"
)

// Reconciler aligns persisted download records with the filesystem. It runs
// once at startup, before anything trusts download state, and is safe to
// run on every launch: a consistent store is left untouched.
type Reconciler struct {
	episodes *store.EpisodeRepository
	coord    *Coordinator
	dir      string
}

// NewReconciler creates a reconciler over the downloads directory.
func NewReconciler(episodes *store.EpisodeRepository, coord *Coordinator, dir string) *Reconciler {
	return &Reconciler{episodes: episodes, coord: coord, dir: dir}
}

// Run performs the three repairs. They are independent and order does not
// matter; per-episode failures are logged and skipped so one bad record
// cannot block startup.
func (r *Reconciler) Run() error {
	if err := r.migratePaths(); err != nil {
		return err
	}
	if err := r.clearStaleProgress(); err != nil {
		return err
	}
	return r.removeDanglingFiles()
}

// migratePaths rewrites absolute local paths (an earlier record format, not
// stable across container moves) to relative filenames, clears records
// whose file is gone, and leaves consistent records alone.
func (r *Reconciler) migratePaths() error {
	eps, err := r.episodes.ListDownloaded()
	if err != nil {
		return err
	}

	for _, ep := range eps {
		name := *ep.LocalFile
		if filepath.IsAbs(name) {
			name = filepath.Base(name)
		}

		if _, err := os.Stat(filepath.Join(r.dir, name)); err != nil {
			log.WithFields(log.Fields{"guid": ep.GUID, "file": *ep.LocalFile}).
				Info("downloaded file missing, clearing record")
			if err := r.episodes.ClearLocalFile(ep.GUID); err != nil {
				log.WithError(err).WithField("guid", ep.GUID).Warn("failed to clear missing download")
			}
			continue
		}

		if name != *ep.LocalFile {
			log.WithFields(log.Fields{"guid": ep.GUID, "file": name}).
				Info("migrating absolute download path")
			if err := r.episodes.SetLocalFile(ep.GUID, name); err != nil {
				log.WithError(err).WithField("guid", ep.GUID).Warn("failed to migrate download path")
			}
		}
	}
	return nil
}

// clearStaleProgress clears download_progress left over from a previous
// process, unless the coordinator confirms the transfer is live.
func (r *Reconciler) clearStaleProgress() error {
	eps, err := r.episodes.ListInProgress()
	if err != nil {
		return err
	}

	for _, ep := range eps {
		if r.coord != nil && r.coord.Active(ep.GUID) {
			continue
		}
		log.WithField("guid", ep.GUID).Info("clearing stale download progress")
		if err := r.episodes.ClearProgress(ep.GUID); err != nil {
			log.WithError(err).WithField("guid", ep.GUID).Warn("failed to clear stale progress")
		}
	}
	return nil
}

// removeDanglingFiles deletes files in the downloads directory that no
// episode record claims, e.g. a file whose episode was deleted while the
// write was still completing.
func (r *Reconciler) removeDanglingFiles() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	expected := make(map[string]struct{})

	guids, err := r.episodes.ListGUIDs()
	if err != nil {
		return err
	}
	for _, guid := range guids {
		expected[MediaFilename(guid)] = struct{}{}
	}

	// Legacy names recorded before deterministic naming still count.
	downloaded, err := r.episodes.ListDownloaded()
	if err != nil {
		return err
	}
	for _, ep := range downloaded {
		expected[filepath.Base(*ep.LocalFile)] = struct{}{}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) == ".tmp" {
			continue
		}
		if _, ok := expected[name]; ok {
			continue
		}

		log.WithField("file", name).Info("removing dangling download")
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			log.WithError(err).WithField("file", name).Warn("failed to remove dangling download")
		}
	}
	return nil
}
