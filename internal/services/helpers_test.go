package services

import (
	"path/filepath"
	"testing"

	"lumichat/internal/database"
)

// newTestDB opens a throwaway SQLite database with the full schema.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}
