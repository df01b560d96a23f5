package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// SettingsRepository handles the process-wide settings singleton. Exactly
// one row exists; it is created lazily on first access.
type SettingsRepository struct {
	db *sql.DB
}

// Get returns the settings, creating the default row if none exists yet.
func (r *SettingsRepository) Get() (Settings, error) {
	row := r.db.QueryRow(`SELECT storage_limit_bytes, episodes_per_podcast,
		download_preference, auto_download_preference, last_refreshed_at
		FROM settings WHERE id = 1`)

	var (
		s         Settings
		refreshed sql.NullTime
	)
	err := row.Scan(&s.StorageLimitBytes, &s.EpisodesPerPodcast,
		&s.DownloadPreference, &s.AutoDownloadPreference, &refreshed)
	if err == sql.ErrNoRows {
		s = DefaultSettings()
		if err := r.Update(s); err != nil {
			return Settings{}, err
		}
		return s, nil
	}
	if err != nil {
		return Settings{}, errors.Wrap(err, "failed to load settings")
	}

	if refreshed.Valid {
		t := refreshed.Time
		s.LastRefreshedAt = &t
	}
	return s, nil
}

// Update writes the settings row, creating it if necessary.
func (r *SettingsRepository) Update(s Settings) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (id, storage_limit_bytes, episodes_per_podcast,
			download_preference, auto_download_preference, last_refreshed_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			storage_limit_bytes = excluded.storage_limit_bytes,
			episodes_per_podcast = excluded.episodes_per_podcast,
			download_preference = excluded.download_preference,
			auto_download_preference = excluded.auto_download_preference,
			last_refreshed_at = excluded.last_refreshed_at
	`, s.StorageLimitBytes, s.EpisodesPerPodcast,
		string(s.DownloadPreference), string(s.AutoDownloadPreference),
		nullTime(s.LastRefreshedAt))
	return errors.Wrap(err, "failed to update settings")
}

// TouchRefreshed records the time of the last global refresh.
func (r *SettingsRepository) TouchRefreshed(at time.Time) error {
	s, err := r.Get()
	if err != nil {
		return err
	}
	s.LastRefreshedAt = &at
	return r.Update(s)
}
