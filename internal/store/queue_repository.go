package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// QueueRepository handles database operations for the playback queue.
type QueueRepository struct {
	db *sql.DB
}

// List returns the queue in playback order.
func (r *QueueRepository) List() ([]*QueueEntry, error) {
	rows, err := r.db.Query(`SELECT episode_guid, position, added_at
		FROM queue_entries ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue")
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.EpisodeGUID, &e.Position, &e.AddedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan queue entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Add appends the episode to the end of the queue. Adding an episode that
// is already queued is a no-op.
func (r *QueueRepository) Add(guid string, at time.Time) error {
	var next int
	row := r.db.QueryRow(`SELECT COALESCE(MAX(position), 0) + 1 FROM queue_entries`)
	if err := row.Scan(&next); err != nil {
		return errors.Wrap(err, "failed to find queue tail")
	}

	_, err := r.db.Exec(`
		INSERT INTO queue_entries (episode_guid, position, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (episode_guid) DO NOTHING
	`, guid, next, at)
	return errors.Wrap(err, "failed to enqueue episode")
}

// Remove drops the episode from the queue; a no-op when it is not queued.
func (r *QueueRepository) Remove(guid string) error {
	_, err := r.db.Exec(`DELETE FROM queue_entries WHERE episode_guid = ?`, guid)
	return errors.Wrap(err, "failed to remove queue entry")
}
