package store

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FolderRepository handles database operations for folders.
type FolderRepository struct {
	db *sql.DB
}

// Get returns the folder with the given id, or nil if none exists.
func (r *FolderRepository) Get(id string) (*Folder, error) {
	row := r.db.QueryRow(`SELECT id, name, color, auto_download FROM folders WHERE id = ?`, id)

	var f Folder
	err := row.Scan(&f.ID, &f.Name, &f.Color, &f.AutoDownload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get folder")
	}
	return &f, nil
}

// List returns all folders.
func (r *FolderRepository) List() ([]*Folder, error) {
	rows, err := r.db.Query(`SELECT id, name, color, auto_download FROM folders ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list folders")
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Color, &f.AutoDownload); err != nil {
			return nil, errors.Wrap(err, "failed to scan folder row")
		}
		folders = append(folders, &f)
	}
	return folders, rows.Err()
}

// Upsert creates or updates a folder, keyed by name, and returns its id.
func (r *FolderRepository) Upsert(f *Folder) (string, error) {
	row := r.db.QueryRow(`SELECT id FROM folders WHERE name = ?`, f.Name)
	var existing string
	err := row.Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return "", errors.Wrap(err, "failed to look up folder")
	}
	if existing != "" {
		f.ID = existing
	} else if f.ID == "" {
		f.ID = uuid.NewString()
	}

	_, err = r.db.Exec(`
		INSERT INTO folders (id, name, color, auto_download)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			color = excluded.color,
			auto_download = excluded.auto_download
	`, f.ID, f.Name, f.Color, f.AutoDownload)
	if err != nil {
		return "", errors.Wrap(err, "failed to upsert folder")
	}

	return f.ID, nil
}
