package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoCredentials is returned when a user has no stored Strava connection row
var ErrNoCredentials = errors.New("no strava credentials stored")

// ErrNoAppCredentials is returned when the central app credentials row is absent
var ErrNoAppCredentials = errors.New("no strava app credentials stored")

// ErrActivityNotFound is returned when an activity doesn't exist
var ErrActivityNotFound = errors.New("activity not found")

// DB wraps the SQLite connection and provides the data access layer
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path, creating it and applying migrations if necessary.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps :memory: databases coherent
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := applyMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{sqlDB}, nil
}

// formatTime renders timestamps the way every table stores them
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s %q: %w", column, value, err)
	}
	return t, nil
}

func parseNullTime(column string, ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(column, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
