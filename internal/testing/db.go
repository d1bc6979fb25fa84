// Package testing provides test helpers shared across finreport packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/finreport/internal/database"
)

// NewTestDB creates a migrated SQLite database in a per-test temp directory.
// name selects the schema: "ledger", "history" or "reports".
// The returned cleanup is also registered with t.Cleanup and is safe to call twice.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	}
	t.Cleanup(cleanup)

	return db, cleanup
}
