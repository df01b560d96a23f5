package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PodcastRepository handles database operations for podcast records.
type PodcastRepository struct {
	db *sql.DB
}

const podcastColumns = `id, feed_url, title, folder_id, auto_download,
	download_preference, last_fetched`

func scanPodcast(row interface{ Scan(...any) error }) (*Podcast, error) {
	var (
		p        Podcast
		folderID sql.NullString
		pref     sql.NullString
		fetched  sql.NullTime
	)

	err := row.Scan(&p.ID, &p.FeedURL, &p.Title, &folderID, &p.AutoDownload, &pref, &fetched)
	if err != nil {
		return nil, err
	}

	if folderID.Valid {
		p.FolderID = &folderID.String
	}
	if pref.Valid {
		v := NetworkPreference(pref.String)
		p.DownloadPreference = &v
	}
	if fetched.Valid {
		t := fetched.Time
		p.LastFetched = &t
	}

	return &p, nil
}

// Get returns the podcast with the given id, or nil if none exists.
func (r *PodcastRepository) Get(id string) (*Podcast, error) {
	row := r.db.QueryRow(`SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, id)
	p, err := scanPodcast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get podcast")
	}
	return p, nil
}

// GetByFeedURL returns the podcast subscribed at the given feed URL, or nil.
func (r *PodcastRepository) GetByFeedURL(url string) (*Podcast, error) {
	row := r.db.QueryRow(`SELECT `+podcastColumns+` FROM podcasts WHERE feed_url = ?`, url)
	p, err := scanPodcast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get podcast by feed url")
	}
	return p, nil
}

// List returns all subscribed podcasts.
func (r *PodcastRepository) List() ([]*Podcast, error) {
	rows, err := r.db.Query(`SELECT ` + podcastColumns + ` FROM podcasts ORDER BY title, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list podcasts")
	}
	defer rows.Close()

	var podcasts []*Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan podcast row")
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, rows.Err()
}

// Upsert subscribes a podcast, keyed by feed URL, and returns its id. An
// existing subscription keeps its id while settings fields are refreshed.
func (r *PodcastRepository) Upsert(p *Podcast) (string, error) {
	existing, err := r.GetByFeedURL(p.FeedURL)
	if err != nil {
		return "", err
	}
	if existing != nil {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var pref any
	if p.DownloadPreference != nil {
		pref = string(*p.DownloadPreference)
	}
	var folder any
	if p.FolderID != nil {
		folder = *p.FolderID
	}

	_, err = r.db.Exec(`
		INSERT INTO podcasts (id, feed_url, title, folder_id, auto_download, download_preference)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_url) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE podcasts.title END,
			folder_id = excluded.folder_id,
			auto_download = excluded.auto_download,
			download_preference = excluded.download_preference
	`, p.ID, p.FeedURL, p.Title, folder, p.AutoDownload, pref)
	if err != nil {
		return "", errors.Wrap(err, "failed to upsert podcast")
	}

	return p.ID, nil
}

// SetTitle updates the feed-supplied title.
func (r *PodcastRepository) SetTitle(id, title string) error {
	_, err := r.db.Exec(`UPDATE podcasts SET title = ? WHERE id = ?`, title, id)
	return errors.Wrap(err, "failed to set podcast title")
}

// TouchFetched records when the podcast's feed was last fetched.
func (r *PodcastRepository) TouchFetched(id string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE podcasts SET last_fetched = ? WHERE id = ?`, at, id)
	return errors.Wrap(err, "failed to record feed fetch")
}

// Delete removes the podcast; its episodes and queue entries cascade away.
// Downloaded files must be deleted by the caller first.
func (r *PodcastRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM podcasts WHERE id = ?`, id)
	return errors.Wrap(err, "failed to delete podcast")
}
