package flow

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/intellidesk/internal/testfixtures"
)

func newTestStore(t *testing.T) (*MemoryStore, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("flow")
	return NewMemoryStore(WithClock(clock.NowFunc()), WithIDGenerator(ids.NextFunc())), clock
}

func TestMemoryStoreCreate(t *testing.T) {
	store, clock := newTestStore(t)

	t.Run("starts collecting with fresh ttl", func(t *testing.T) {
		f, err := store.Create("alice", KindMeeting)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.Step != StepCollecting || len(f.Data) != 0 || len(f.History) != 0 {
			t.Fatalf("unexpected flow %+v", f)
		}
		if want := clock.Now().Add(DefaultTTL); !f.ExpiresAt.Equal(want) {
			t.Fatalf("expected expiry %v, got %v", want, f.ExpiresAt)
		}
		if f.ReferenceDate != "02/01/2024" {
			t.Fatalf("expected reference date 02/01/2024, got %q", f.ReferenceDate)
		}
		if owner, ok := store.Owner(f.ID); !ok || owner != "alice" {
			t.Fatalf("expected owner alice, got %q %v", owner, ok)
		}
	})

	t.Run("legacy kind spelling is accepted", func(t *testing.T) {
		f, err := store.Create("alice", Kind("equipment_assignment"))
		if err != nil || f.Kind != KindEquipment {
			t.Fatalf("expected equipment flow, got %+v (%v)", f, err)
		}
	})

	t.Run("unsupported kind creates nothing", func(t *testing.T) {
		before := len(store.Active("bob"))
		if _, err := store.Create("bob", Kind("smalltalk")); !errors.Is(err, ErrUnsupportedKind) {
			t.Fatalf("expected ErrUnsupportedKind, got %v", err)
		}
		if got := len(store.Active("bob")); got != before {
			t.Fatalf("expected no new flows, got %d", got)
		}
	})

	t.Run("blank user is rejected", func(t *testing.T) {
		if _, err := store.Create("  ", KindTicket); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestMemoryStoreExpiry(t *testing.T) {
	store, clock := newTestStore(t)
	f, _ := store.Create("alice", KindMeeting)

	clock.Advance(DefaultTTL - time.Second)
	if got := store.Active("alice"); len(got) != 1 {
		t.Fatalf("expected live flow, got %d", len(got))
	}

	clock.Advance(time.Second)
	if got := store.Active("alice"); len(got) != 0 {
		t.Fatalf("expected flow expired at its deadline, got %+v", got)
	}
	if _, ok := store.Owner(f.ID); ok {
		t.Fatalf("expected owner index cleared")
	}
	if _, err := store.AppendHistory("alice", f.ID, SpeakerUser, "late"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on expired flow, got %v", err)
	}
}

func TestMemoryStoreMutationsRefreshTTL(t *testing.T) {
	store, clock := newTestStore(t)
	f, _ := store.Create("alice", KindMeeting)

	clock.Advance(10 * time.Minute)
	updated, err := store.AppendHistory("alice", f.ID, SpeakerUser, "book a room")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if want := clock.Now().Add(DefaultTTL); !updated.ExpiresAt.Equal(want) {
		t.Fatalf("expected refreshed expiry %v, got %v", want, updated.ExpiresAt)
	}

	clock.Advance(10 * time.Minute)
	if len(store.Active("alice")) != 1 {
		t.Fatalf("expected flow kept alive by mutation")
	}
}

func TestMemoryStoreAppendHistoryByFlowID(t *testing.T) {
	store, _ := newTestStore(t)
	f, _ := store.Create("alice", KindTicket)

	updated, err := store.AppendHistory("", f.ID, SpeakerAssistant, "hello")
	if err != nil {
		t.Fatalf("expected owner lookup to succeed, got %v", err)
	}
	if len(updated.History) != 1 || updated.History[0].Speaker != SpeakerAssistant {
		t.Fatalf("unexpected history %+v", updated.History)
	}
	if _, err := store.AppendHistory("", "flow-missing", SpeakerUser, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateData(t *testing.T) {
	store, _ := newTestStore(t)
	f, _ := store.Create("alice", KindMeeting)

	if _, err := store.UpdateData("alice", f.ID, map[string]string{"title": "Sync", "date": "10/06"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	updated, err := store.UpdateData("alice", f.ID, map[string]string{"title": "Planning", "date": "  "})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Data["title"] != "Planning" || updated.Data["date"] != "10/06" {
		t.Fatalf("expected later value to win and blanks ignored, got %+v", updated.Data)
	}
}

func TestMemoryStoreUpdateStep(t *testing.T) {
	store, _ := newTestStore(t)
	f, _ := store.Create("alice", KindMeeting)

	if _, err := store.UpdateStep("alice", f.ID, Step("done")); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
	got, err := store.UpdateStep("alice", f.ID, Step("confirm"))
	if err != nil || got.Step != StepConfirming {
		t.Fatalf("expected confirming, got %+v (%v)", got, err)
	}

	withCandidates, _ := store.SetCandidates("alice", f.ID, []Candidate{{Date: "10/06", StartTime: "11:00"}})
	if !withCandidates.SelectingSlot() {
		t.Fatalf("expected slot selection sub-state")
	}
	back, _ := store.UpdateStep("alice", f.ID, StepCollecting)
	if len(back.Candidates) != 0 {
		t.Fatalf("expected candidates cleared, got %+v", back.Candidates)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	store, _ := newTestStore(t)
	f, _ := store.Create("alice", KindEquipment)
	_, _ = store.AppendHistory("alice", f.ID, SpeakerUser, "need a laptop")
	_, _ = store.UpdateData("alice", f.ID, map[string]string{"item": "laptop"})
	_, _ = store.UpdateStep("alice", f.ID, StepConfirming)

	fresh, err := store.Reset("alice", f.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	active := store.Active("alice")
	if len(active) != 1 {
		t.Fatalf("expected exactly one flow, got %d", len(active))
	}
	got := active[0]
	if got.ID != fresh.ID || got.ID == f.ID {
		t.Fatalf("expected new id, got %q (old %q)", got.ID, f.ID)
	}
	if got.Kind != KindEquipment || got.Step != StepCollecting || len(got.Data) != 0 || len(got.History) != 0 {
		t.Fatalf("expected empty collecting equipment flow, got %+v", got)
	}
	if _, ok := store.Owner(f.ID); ok {
		t.Fatalf("expected old flow unregistered")
	}
	if _, err := store.Reset("alice", f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound resetting twice, got %v", err)
	}
}

func TestMemoryStoreDeleteAndSweep(t *testing.T) {
	store, clock := newTestStore(t)
	a, _ := store.Create("alice", KindMeeting)
	_, _ = store.Create("bob", KindTicket)

	if err := store.Delete("alice", a.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.Delete("alice", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	clock.Advance(DefaultTTL + time.Minute)
	if n := store.Sweep(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if len(store.Export()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestMemoryStoreExportImport(t *testing.T) {
	store, clock := newTestStore(t)
	f, _ := store.Create("alice", KindMeeting)
	_, _ = store.AppendHistory("alice", f.ID, SpeakerUser, "room for 5")
	stale, _ := store.Create("bob", KindTicket)
	stale.ExpiresAt = clock.Now().Add(-time.Second)

	snapshot := append(store.Export(), stale)

	restored := NewMemoryStore(WithClock(clock.NowFunc()))
	if n := restored.Import(snapshot); n != 2 {
		t.Fatalf("expected 2 flows loaded, got %d", n)
	}
	if n := restored.Import(snapshot); n != 0 {
		t.Fatalf("expected duplicates skipped, got %d", n)
	}

	got, err := restored.Get("alice", f.ID)
	if err != nil {
		t.Fatalf("expected restored flow, got %v", err)
	}
	if len(got.History) != 1 || got.History[0].Text != "room for 5" {
		t.Fatalf("unexpected history %+v", got.History)
	}
	if len(restored.Active("bob")) != 1 {
		t.Fatalf("expected bob's live flow restored")
	}
}

func TestMemoryStoreLastTouchedWins(t *testing.T) {
	store, clock := newTestStore(t)
	first, _ := store.Create("alice", KindMeeting)
	clock.Advance(time.Minute)
	_, _ = store.Create("alice", KindTicket)
	clock.Advance(time.Minute)
	_, _ = store.AppendHistory("alice", first.ID, SpeakerUser, "back to the meeting")

	latest, ok := LastTouched(store.Active("alice"))
	if !ok || latest.ID != first.ID {
		t.Fatalf("expected %s to win, got %+v", first.ID, latest)
	}
}

func TestMemoryStoreConcurrentUsers(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for u := 0; u < 20; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", u)
			f, err := store.Create(userID, KindMeeting)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			for i := 0; i < 50; i++ {
				if _, err := store.AppendHistory(userID, f.ID, SpeakerUser, "hi"); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < 20; u++ {
		active := store.Active(fmt.Sprintf("user-%d", u))
		if len(active) != 1 || len(active[0].History) != 50 {
			t.Fatalf("expected 50 turns for user-%d, got %+v", u, active)
		}
	}
}
