package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/notehub/nhchat/internal/store/migrations"
)

// DB wraps the daemon-owned nhd.db. It holds client bookkeeping only
// (outbox, checkpoints, credentials, caches); chat state is never persisted.
type DB struct {
	*sql.DB
}

// Schema reports the migration version after Migrate.
type Schema struct {
	Version uint
	Applied bool // at least one migration ran
}

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Open opens the sqlite file at path in WAL mode.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return &DB{conn}, nil
}

// Migrate brings the schema up to the newest embedded migration.
func (db *DB) Migrate() (Schema, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return Schema{}, fmt.Errorf("load migrations: %w", err)
	}
	target, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return Schema{}, fmt.Errorf("migrate target: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", target)
	if err != nil {
		return Schema{}, fmt.Errorf("migrate: %w", err)
	}

	var s Schema
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return Schema{}, fmt.Errorf("apply migrations: %w", err)
	default:
		s.Applied = true
	}
	v, dirty, err := m.Version()
	if err != nil {
		return Schema{}, fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return Schema{}, fmt.Errorf("schema version %d is dirty", v)
	}
	s.Version = v
	return s, nil
}
