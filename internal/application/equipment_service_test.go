package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/persistence"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newEquipmentService(t *testing.T) (*EquipmentService, *stepClock, *notifierStub, *auditStub) {
	t.Helper()
	hasher, err := equipment.NewHasher("test-secret")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	clock := &stepClock{t: fixedNow}
	items := persistence.NewCollection[persistence.Equipment](persistence.NewMemoryBlobStore(), persistence.CollectionEquipment)
	svc := NewEquipmentService(items, hasher, clock.now)
	notifier := &notifierStub{}
	audit := &auditStub{}
	svc.UseNotifier(notifier)
	svc.UseAudit(audit)
	if _, err := svc.Seed(context.Background(), []EquipmentItem{{ID: "LAP-1", Name: "Laptop"}, {ID: "MON-1", Name: "Monitor"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc, clock, notifier, audit
}

var (
	alice = Principal{UserID: "alice", Role: RoleUser}
	admin = Principal{UserID: "it-admin", Role: RoleAdmin}
)

func requestLaptop(t *testing.T, svc *EquipmentService) EquipmentRequestResult {
	t.Helper()
	result, err := svc.Request(context.Background(), RequestEquipmentParams{Principal: alice, Item: "laptop", MeetingID: "MTG-1", ReturnBy: "2024-06-12"})
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	return result
}

func TestEquipmentService_Seed(t *testing.T) {
	svc, _, _, _ := newEquipmentService(t)
	added, err := svc.Seed(context.Background(), []EquipmentItem{{ID: "LAP-1", Name: "Laptop"}, {ID: "KEY-1", Name: "Keyboard"}})
	if err != nil || added != 1 {
		t.Fatalf("expected one new item, got %d (%v)", added, err)
	}
	items, _ := svc.ListEquipment(context.Background(), admin)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
}

func TestEquipmentService_Request(t *testing.T) {
	svc, _, notifier, _ := newEquipmentService(t)

	result := requestLaptop(t, svc)
	if result.Item.ID != "LAP-1" || result.Item.Status != equipment.StatusPending {
		t.Fatalf("unexpected item %+v", result.Item)
	}
	if len(result.Code) != equipment.CodeLength {
		t.Fatalf("expected %d character code, got %q", equipment.CodeLength, result.Code)
	}
	if !result.CodeExpiresAt.Equal(fixedNow.Add(equipment.CodeTTL)) {
		t.Fatalf("unexpected code expiry %v", result.CodeExpiresAt)
	}
	if result.Item.CodeDigest != "" {
		t.Fatalf("expected digest hidden from callers")
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0].Body, result.Code) || !strings.Contains(notifier.sent[0].Body, "MTG-1") {
		t.Fatalf("expected submission email with code, got %+v", notifier.sent)
	}

	if _, err := svc.Request(context.Background(), RequestEquipmentParams{Principal: alice, Item: "laptop", ReturnBy: "2024-06-12"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for second laptop, got %v", err)
	}

	_, err := svc.Request(context.Background(), RequestEquipmentParams{Principal: alice, Item: "monitor", ReturnBy: "next week"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["return_by"] == "" {
		t.Fatalf("expected return_by validation error, got %v", err)
	}
}

func TestEquipmentService_Approve(t *testing.T) {
	t.Run("valid code assigns the item", func(t *testing.T) {
		svc, _, _, audit := newEquipmentService(t)
		result := requestLaptop(t, svc)

		if _, err := svc.Approve(context.Background(), alice, result.Code); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
		}
		item, err := svc.Approve(context.Background(), admin, strings.ToLower(result.Code))
		if err != nil {
			t.Fatalf("expected approval, got %v", err)
		}
		if item.Status != equipment.StatusAssigned || item.AssignedTo != "alice" || item.ApprovedBy != "it-admin" {
			t.Fatalf("unexpected item %+v", item)
		}
		if _, err := svc.Approve(context.Background(), admin, result.Code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected code to be single use, got %v", err)
		}
		if got := audit.actions(); got[len(got)-1] != "equipment.approved" {
			t.Fatalf("expected approval audit, got %v", got)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		svc, _, _, _ := newEquipmentService(t)
		requestLaptop(t, svc)
		if _, err := svc.Approve(context.Background(), admin, "ZZZZZZ"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
	})

	t.Run("code clock expires first", func(t *testing.T) {
		svc, clock, _, _ := newEquipmentService(t)
		result := requestLaptop(t, svc)
		clock.advance(equipment.CodeTTL)
		if _, err := svc.Approve(context.Background(), admin, result.Code); !errors.Is(err, ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired, got %v", err)
		}
	})

	t.Run("request clock wins when both lapsed", func(t *testing.T) {
		svc, clock, _, _ := newEquipmentService(t)
		result := requestLaptop(t, svc)
		clock.advance(equipment.RequestTTL)
		if _, err := svc.Approve(context.Background(), admin, result.Code); !errors.Is(err, ErrRequestExpired) {
			t.Fatalf("expected ErrRequestExpired, got %v", err)
		}
		items, _ := svc.ListEquipment(context.Background(), admin)
		for _, item := range items {
			if item.ID == "LAP-1" && item.Status != equipment.StatusAvailable {
				t.Fatalf("expected laptop released, got %+v", item)
			}
		}
	})
}

func TestEquipmentService_ReturnAndVerify(t *testing.T) {
	svc, clock, _, _ := newEquipmentService(t)
	result := requestLaptop(t, svc)
	if _, err := svc.Approve(context.Background(), admin, result.Code); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := svc.Return(context.Background(), Principal{UserID: "mallory"}, "LAP-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-holder, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), admin, "LAP-1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict verifying an assigned item, got %v", err)
	}

	clock.advance(72 * time.Hour)
	returned, err := svc.Return(context.Background(), alice, "LAP-1")
	if err != nil || returned.Status != equipment.StatusReturned {
		t.Fatalf("expected returned, got %+v (%v)", returned, err)
	}
	if _, err := svc.Verify(context.Background(), alice, "LAP-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin verify, got %v", err)
	}
	verified, err := svc.Verify(context.Background(), admin, "LAP-1")
	if err != nil {
		t.Fatalf("expected verify, got %v", err)
	}
	if verified.Status != equipment.StatusAvailable || !verified.Late {
		t.Fatalf("expected available and late, got %+v", verified)
	}
	if _, err := svc.Return(context.Background(), alice, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEquipmentService_ExpireStale(t *testing.T) {
	svc, clock, _, audit := newEquipmentService(t)
	requestLaptop(t, svc)

	clock.advance(equipment.RequestTTL - time.Second)
	if n, err := svc.ExpireStale(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected nothing released yet, got %d (%v)", n, err)
	}
	clock.advance(time.Second)
	if n, err := svc.ExpireStale(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected one release, got %d (%v)", n, err)
	}
	if got := audit.actions(); got[len(got)-1] != "equipment.expired" {
		t.Fatalf("expected expiry audit, got %v", got)
	}

	items, _ := svc.ListEquipment(context.Background(), alice)
	for _, item := range items {
		if item.Status != equipment.StatusAvailable {
			t.Fatalf("expected all available, got %+v", item)
		}
	}
}

func TestEquipmentService_ApproveAfterSweep(t *testing.T) {
	svc, clock, _, _ := newEquipmentService(t)
	ctx := context.Background()
	first := requestLaptop(t, svc)

	clock.advance(41 * time.Minute)
	if n, err := svc.ExpireStale(ctx); err != nil || n != 1 {
		t.Fatalf("expected one release, got %d (%v)", n, err)
	}

	t.Run("the swept code reports request expiry", func(t *testing.T) {
		item, err := svc.Approve(ctx, admin, first.Code)
		if !errors.Is(err, ErrRequestExpired) {
			t.Fatalf("expected ErrRequestExpired, got %v", err)
		}
		if item.ID != first.Item.ID || item.ExpiredCodeDigest != "" {
			t.Fatalf("expected the released item without its digest, got %+v", item)
		}
	})

	t.Run("an unknown code is still invalid", func(t *testing.T) {
		if _, err := svc.Approve(ctx, admin, "ZZZZZZ"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
	})

	t.Run("a new request on the item forgets the old code", func(t *testing.T) {
		second := requestLaptop(t, svc)
		if second.Item.ID != first.Item.ID {
			t.Fatalf("expected %s again, got %s", first.Item.ID, second.Item.ID)
		}
		if _, err := svc.Approve(ctx, admin, first.Code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode for the stale code, got %v", err)
		}
		if _, err := svc.Approve(ctx, admin, second.Code); err != nil {
			t.Fatalf("expected the fresh code to approve, got %v", err)
		}
	})
}
