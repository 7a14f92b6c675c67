package store

import (
	"path/filepath"
	"testing"
)

// NewTestDB opens a migrated database in a temporary directory that is
// removed when the test finishes. This is only intended for use in tests.
func NewTestDB(tb testing.TB) *DB {
	tb.Helper()

	db, err := Open(filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}
