package testutil

import (
	"testing"

	"autobackup/internal/backup"
	"autobackup/internal/database"
)

// NewTestCatalog creates a new in-memory SQLite catalog with migrations applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T, clock backup.Clock) *database.SQLiteCatalog {
	t.Helper()

	catalog, err := database.NewSQLiteCatalog(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		catalog.Close()
	})

	return catalog
}
