package cache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/raceplay.report/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Index is the sqlite-backed existence index for Tier 2 of the cache
// (spec.md §4.6 / SPEC_FULL.md §2.1): it answers "does a valid disk entry
// exist for this key" from a single indexed row, without opening the
// frame blob. Mirrors internal/db.DB's thin *sql.DB wrapper and
// internal/db/migrate.go's embedded-migration approach.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if necessary) the sqlite index database under
// dir and migrates it to the latest schema.
func OpenIndex(dir string) (*Index, error) {
	path := filepath.Join(dir, "cache_index.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no concurrent-writer story; serialize here

	idx := &Index{db: db}
	if err := idx.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

func (idx *Index) migrateUp() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(idx.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Lookup returns the recorded Entry for key, or ok=false if no row
// exists.
func (idx *Index) Lookup(key session.Key) (Entry, bool, error) {
	var e Entry
	row := idx.db.QueryRow(`
		SELECT header_path, frames_path, checksum, size_bytes
		FROM sessions WHERE cache_key = ?`, key.String())
	err := row.Scan(&e.HeaderPath, &e.FramesPath, &e.Checksum, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return e, true, nil
}

// Upsert records (or replaces) the index row for key.
func (idx *Index) Upsert(key session.Key, e Entry) error {
	_, err := idx.db.Exec(`
		INSERT INTO sessions (cache_key, header_path, frames_path, checksum, size_bytes, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			header_path = excluded.header_path,
			frames_path = excluded.frames_path,
			checksum    = excluded.checksum,
			size_bytes  = excluded.size_bytes,
			updated_unix = excluded.updated_unix`,
		key.String(), e.HeaderPath, e.FramesPath, e.Checksum, e.Size, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key's index row, if any.
func (idx *Index) Delete(key session.Key) error {
	_, err := idx.db.Exec(`DELETE FROM sessions WHERE cache_key = ?`, key.String())
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
