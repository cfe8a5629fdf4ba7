package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/intellidesk/internal/persistence"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "data", "intellidesk.db")))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestStoreMigrate(t *testing.T) {
	store := openTestStore(t)
	status, err := store.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("expected status, got %v", err)
	}
	if status.CurrentVersion != 2 || len(status.Pending) != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := store.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("expected idempotent migrate, got %v", err)
	}
}

func TestStoreReadMissing(t *testing.T) {
	store := openTestStore(t)
	blob, err := store.Read(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if blob.Version != 0 || len(blob.Payload) != 0 {
		t.Fatalf("expected empty blob, got %+v", blob)
	}
}

func TestStoreSwap(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	v, err := store.Swap(ctx, "c", []byte("first"), 0)
	if err != nil || v != 1 {
		t.Fatalf("expected version 1, got %d (%v)", v, err)
	}
	v, err = store.Swap(ctx, "c", []byte("second"), 1)
	if err != nil || v != 2 {
		t.Fatalf("expected version 2, got %d (%v)", v, err)
	}
	if _, err := store.Swap(ctx, "c", []byte("stale"), 1); !errors.Is(err, persistence.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	blob, err := store.Read(ctx, "c")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(blob.Payload) != "second" || blob.Version != 2 {
		t.Fatalf("unexpected blob %+v", blob)
	}

	var (
		count   int
		payload []byte
	)
	row := store.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*), MAX(payload) FROM collection_history WHERE name = 'c'`)
	if err := row.Scan(&count, &payload); err != nil {
		t.Fatalf("query history: %v", err)
	}
	if count != 1 || string(payload) != "first" {
		t.Fatalf("expected replaced payload in history, got %d %q", count, payload)
	}
}

func TestStoreBacksCollection(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	meetings := persistence.NewCollection[persistence.Meeting](store, persistence.CollectionMeetings)

	created := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	if err := meetings.Append(ctx, persistence.Meeting{ID: "MTG-1", Room: "Room 1", Participants: 5, CreatedAt: created}); err != nil {
		t.Fatalf("expected append to succeed, got %v", err)
	}
	if err := meetings.Append(ctx, persistence.Meeting{ID: "MTG-2", Room: "Room 2"}); err != nil {
		t.Fatalf("expected append to succeed, got %v", err)
	}

	reopened := persistence.NewCollection[persistence.Meeting](store, persistence.CollectionMeetings)
	got, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(got) != 2 || got[0].ID != "MTG-1" || got[0].Participants != 5 || !got[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestStoreHistoryRetention(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	history := func(name string) (count int, oldest int64) {
		t.Helper()
		row := store.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(MIN(version), 0) FROM collection_history WHERE name = ?`, name)
		if err := row.Scan(&count, &oldest); err != nil {
			t.Fatalf("query history: %v", err)
		}
		return count, oldest
	}
	swapTimes := func(name string, n int) {
		t.Helper()
		for v := int64(0); v < int64(n); v++ {
			if _, err := store.Swap(ctx, name, []byte{byte(v)}, v); err != nil {
				t.Fatalf("swap %d: %v", v, err)
			}
		}
	}

	t.Run("keeps the newest versions", func(t *testing.T) {
		store.KeepHistory(3)
		swapTimes("bounded", 10)
		if count, oldest := history("bounded"); count != 3 || oldest != 7 {
			t.Fatalf("expected versions 7-9 kept, got %d rows from %d", count, oldest)
		}
	})

	t.Run("zero keeps nothing", func(t *testing.T) {
		store.KeepHistory(0)
		swapTimes("unkept", 4)
		if count, _ := history("unkept"); count != 0 {
			t.Fatalf("expected no history, got %d rows", count)
		}
	})
}
