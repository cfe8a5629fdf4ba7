package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/intellidesk/internal/persistence/sqlite"
)

// SQLiteHarness is a migrated SQLite blob store in a temporary directory.
type SQLiteHarness struct {
	Store *sqlite.Store
	Path  string

	cleanup func()
}

// Close releases the database.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a fresh database. Close is registered
// with tb, so calling it is optional.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "intellidesk.db")
	store, err := sqlite.Open(sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background(), nil); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		Path:  path,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// Factory returns a ServiceFactory whose collections live in the harness database.
func (h *SQLiteHarness) Factory(opts ...ServiceFactoryOption) *ServiceFactory {
	return NewServiceFactory(append([]ServiceFactoryOption{WithBlobStore(h.Store)}, opts...)...)
}
