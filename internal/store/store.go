package store

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps the sqlite database backing the persistent object graph.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// modernc sqlite supports one writer; serialize access through a
	// single connection rather than racing on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create sqlite migration driver")
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to create migration source")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrate instance")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to run migrations")
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Episodes returns a repository over episode records.
func (s *Store) Episodes() *EpisodeRepository { return &EpisodeRepository{db: s.db} }

// Podcasts returns a repository over podcast records.
func (s *Store) Podcasts() *PodcastRepository { return &PodcastRepository{db: s.db} }

// Folders returns a repository over folder records.
func (s *Store) Folders() *FolderRepository { return &FolderRepository{db: s.db} }

// Queue returns a repository over the playback queue.
func (s *Store) Queue() *QueueRepository { return &QueueRepository{db: s.db} }

// Settings returns a repository over the settings singleton.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{db: s.db} }
