// Package store persists everything PUIS discovers: upstream releases,
// poll status, events and the release-monitoring mirror. It also reads the
// external abbs package catalog.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps the PUIS SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS upstream_status (
		package TEXT PRIMARY KEY,
		updated INTEGER,
		last_try INTEGER,
		err TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS package_upstream (
		package TEXT PRIMARY KEY,
		type TEXT,
		version TEXT,
		time INTEGER,
		url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		chore TEXT,
		category TEXT,
		time INTEGER,
		title TEXT,
		content TEXT,
		url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS chore_status (
		name TEXT PRIMARY KEY,
		updated INTEGER,
		last_result TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS anitya_projects (
		id INTEGER PRIMARY KEY,
		name TEXT,
		homepage TEXT,
		ecosystem TEXT,
		backend TEXT,
		version_url TEXT,
		regex TEXT,
		latest_version TEXT,
		updated_on INTEGER,
		created_on INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS anitya_link (
		package TEXT PRIMARY KEY,
		projectid INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anitya_projects ON anitya_projects (name)`,
	`CREATE INDEX IF NOT EXISTS idx_anitya_link ON anitya_link (projectid)`,
	`CREATE INDEX IF NOT EXISTS idx_events_time ON events (time)`,
	`CREATE VIEW IF NOT EXISTS v_package_upstream AS
		SELECT package, type, version, time, url FROM package_upstream
		UNION ALL
		SELECT anitya_link.package,
		       'anitya' AS type,
		       anitya_projects.latest_version AS version,
		       anitya_projects.updated_on AS time,
		       'https://release-monitoring.org/project/' || anitya_projects.id || '/' AS url
		FROM anitya_link
		JOIN anitya_projects ON anitya_link.projectid = anitya_projects.id
		WHERE anitya_link.package NOT IN (SELECT package FROM package_upstream)`,
}

// Open opens (creating if needed) the PUIS database, enables WAL mode and
// bootstraps the schema. SQLite wants a single writer, so the pool is
// pinned to one connection.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.enableWALMode(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) enableWALMode() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to verify WAL mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("WAL mode not enabled, got: %s", mode)
	}
	return nil
}

func (s *Store) bootstrap() error {
	for _, ddl := range schema {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// retryWithBackoff retries an operation on transient SQLITE_BUSY errors.
func (s *Store) retryWithBackoff(ctx context.Context, operation func() error) error {
	const maxRetries = 5
	baseDelay := 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") &&
			!strings.Contains(err.Error(), "database table is locked") {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		if delay > time.Second {
			delay = time.Second
		}
		log.Printf("Database locked, retrying in %v (attempt %d/%d)", delay, attempt+1, maxRetries)
		time.Sleep(delay)
	}
	return fmt.Errorf("database operation failed after %d retries", maxRetries)
}
