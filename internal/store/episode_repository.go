package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// EpisodeRepository handles database operations for episode records.
type EpisodeRepository struct {
	db *sql.DB
}

const episodeColumns = `guid, podcast_id, title, audio_url, duration_seconds,
	published_at, position, played, starred, local_file, download_progress,
	download_size, downloaded_at`

func scanEpisode(row interface{ Scan(...any) error }) (*Episode, error) {
	var (
		e         Episode
		duration  sql.NullInt64
		published sql.NullTime
		localFile sql.NullString
		progress  sql.NullFloat64
		doneAt    sql.NullTime
	)

	err := row.Scan(&e.GUID, &e.PodcastID, &e.Title, &e.AudioURL, &duration,
		&published, &e.Position, &e.Played, &e.Starred, &localFile, &progress,
		&e.DownloadSize, &doneAt)
	if err != nil {
		return nil, err
	}

	if duration.Valid {
		e.DurationSeconds = &duration.Int64
	}
	if published.Valid {
		t := published.Time
		e.PublishedAt = &t
	}
	if localFile.Valid {
		e.LocalFile = &localFile.String
	}
	if progress.Valid {
		e.DownloadProgress = &progress.Float64
	}
	if doneAt.Valid {
		t := doneAt.Time
		e.DownloadedAt = &t
	}

	return &e, nil
}

// Get returns the episode with the given guid, or nil if none exists.
func (r *EpisodeRepository) Get(guid string) (*Episode, error) {
	row := r.db.QueryRow(`SELECT `+episodeColumns+` FROM episodes WHERE guid = ?`, guid)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get episode")
	}
	return e, nil
}

// Upsert inserts the episode or, when the guid already exists, refreshes its
// feed-supplied metadata without touching local playback or download state.
// It reports whether a new record was inserted.
func (r *EpisodeRepository) Upsert(e *Episode) (bool, error) {
	var exists bool
	row := r.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM episodes WHERE guid = ?)`, e.GUID)
	if err := row.Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check episode existence")
	}

	_, err := r.db.Exec(`
		INSERT INTO episodes (guid, podcast_id, title, audio_url, duration_seconds, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			title = excluded.title,
			audio_url = excluded.audio_url,
			duration_seconds = excluded.duration_seconds,
			published_at = excluded.published_at
	`, e.GUID, e.PodcastID, e.Title, e.AudioURL, nullInt(e.DurationSeconds), nullTime(e.PublishedAt))
	if err != nil {
		return false, errors.Wrap(err, "failed to upsert episode")
	}

	return !exists, nil
}

// ListByPodcast returns all episodes belonging to the podcast, newest first.
func (r *EpisodeRepository) ListByPodcast(podcastID string) ([]*Episode, error) {
	return r.list(`SELECT `+episodeColumns+` FROM episodes
		WHERE podcast_id = ?
		ORDER BY published_at DESC, guid`, podcastID)
}

// ListDownloaded returns all episodes carrying a completed local file.
func (r *EpisodeRepository) ListDownloaded() ([]*Episode, error) {
	return r.list(`SELECT ` + episodeColumns + ` FROM episodes
		WHERE local_file IS NOT NULL`)
}

// ListInProgress returns all episodes with a recorded transfer in progress.
func (r *EpisodeRepository) ListInProgress() ([]*Episode, error) {
	return r.list(`SELECT ` + episodeColumns + ` FROM episodes
		WHERE download_progress IS NOT NULL`)
}

// ListGUIDs returns the guids of every episode in the store.
func (r *EpisodeRepository) ListGUIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT guid FROM episodes`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list episode guids")
	}
	defer rows.Close()

	var guids []string
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, errors.Wrap(err, "failed to scan episode guid")
		}
		guids = append(guids, guid)
	}
	return guids, rows.Err()
}

func (r *EpisodeRepository) list(query string, args ...any) ([]*Episode, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list episodes")
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan episode row")
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// SetProgress records an in-progress transfer fraction. The guard on
// local_file keeps a completed episode from re-entering the downloading
// state through a stray write.
func (r *EpisodeRepository) SetProgress(guid string, progress float64) error {
	_, err := r.db.Exec(`UPDATE episodes SET download_progress = ?
		WHERE guid = ? AND local_file IS NULL`, progress, guid)
	return errors.Wrap(err, "failed to set download progress")
}

// ClearProgress removes any in-progress transfer record.
func (r *EpisodeRepository) ClearProgress(guid string) error {
	_, err := r.db.Exec(`UPDATE episodes SET download_progress = NULL WHERE guid = ?`, guid)
	return errors.Wrap(err, "failed to clear download progress")
}

// CompleteDownload atomically records a finished transfer: the local file is
// set and the progress cleared in one statement, so no observer can see both.
func (r *EpisodeRepository) CompleteDownload(guid, file string, size int64, at time.Time) error {
	_, err := r.db.Exec(`UPDATE episodes SET
		local_file = ?, download_progress = NULL, download_size = ?, downloaded_at = ?
		WHERE guid = ?`, file, size, at, guid)
	return errors.Wrap(err, "failed to record download completion")
}

// SetLocalFile rewrites the stored filename without touching other state.
// Used by the reconciler's path migration.
func (r *EpisodeRepository) SetLocalFile(guid, file string) error {
	_, err := r.db.Exec(`UPDATE episodes SET local_file = ? WHERE guid = ?`, file, guid)
	return errors.Wrap(err, "failed to set local file")
}

// ClearLocalFile removes the completed-download record for an episode.
func (r *EpisodeRepository) ClearLocalFile(guid string) error {
	_, err := r.db.Exec(`UPDATE episodes SET
		local_file = NULL, download_size = 0, downloaded_at = NULL
		WHERE guid = ?`, guid)
	return errors.Wrap(err, "failed to clear local file")
}

// MarkPlayed sets the played flag.
func (r *EpisodeRepository) MarkPlayed(guid string, played bool) error {
	_, err := r.db.Exec(`UPDATE episodes SET played = ? WHERE guid = ?`, played, guid)
	return errors.Wrap(err, "failed to mark episode played")
}

// SetStarred sets the starred flag.
func (r *EpisodeRepository) SetStarred(guid string, starred bool) error {
	_, err := r.db.Exec(`UPDATE episodes SET starred = ? WHERE guid = ?`, starred, guid)
	return errors.Wrap(err, "failed to star episode")
}

// SetPosition persists the playback position in seconds.
func (r *EpisodeRepository) SetPosition(guid string, seconds float64) error {
	_, err := r.db.Exec(`UPDATE episodes SET position = ? WHERE guid = ?`, seconds, guid)
	return errors.Wrap(err, "failed to set playback position")
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
