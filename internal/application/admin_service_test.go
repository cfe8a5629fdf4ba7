package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/persistence"
)

type auditReaderStub struct {
	records []AuditRecord
	limits  []int
}

func (s *auditReaderStub) Read(_ context.Context, limit int) ([]AuditRecord, error) {
	s.limits = append(s.limits, limit)
	if limit > 0 && len(s.records) > limit {
		return s.records[len(s.records)-limit:], nil
	}
	return s.records, nil
}

func newAdminService(t *testing.T, trail AuditReader) *AdminService {
	t.Helper()
	ctx := context.Background()
	blobs := persistence.NewMemoryBlobStore()
	meetings := persistence.NewCollection[persistence.Meeting](blobs, persistence.CollectionMeetings)
	tickets := persistence.NewCollection[persistence.Ticket](blobs, persistence.CollectionTickets)
	items := persistence.NewCollection[persistence.Equipment](blobs, persistence.CollectionEquipment)

	for _, m := range []persistence.Meeting{
		{ID: "MTG-1", Room: "Room 1", CreatedBy: "alice"},
		{ID: "MTG-2", Room: "Room 2", CreatedBy: "bob", CancelledAt: fixedNow},
	} {
		if err := meetings.Append(ctx, m); err != nil {
			t.Fatalf("seed meeting: %v", err)
		}
	}
	for _, tk := range []persistence.Ticket{
		{ID: "TCK-1", Status: string(TicketOpen), CreatedBy: "alice"},
		{ID: "TCK-2", Status: string(TicketEscalated), CreatedBy: "bob", AssignedAdmin: "it-admin"},
		{ID: "TCK-3", Status: string(TicketOpen), CreatedBy: "carol"},
	} {
		if err := tickets.Append(ctx, tk); err != nil {
			t.Fatalf("seed ticket: %v", err)
		}
	}
	for _, item := range []persistence.Equipment{
		{ID: "MON-1", Name: "Monitor", Status: string(equipment.StatusAvailable)},
		{ID: "LAP-1", Name: "Laptop", Status: string(equipment.StatusPending), CodeDigest: "secret-digest"},
	} {
		if err := items.Append(ctx, item); err != nil {
			t.Fatalf("seed equipment: %v", err)
		}
	}
	return NewAdminService(meetings, tickets, items, trail, nil)
}

func TestAdminService_Overview(t *testing.T) {
	svc := newAdminService(t, nil)

	t.Run("users are refused", func(t *testing.T) {
		if _, err := svc.Overview(context.Background(), alice); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("admins see every store", func(t *testing.T) {
		got, err := svc.Overview(context.Background(), admin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got.Meetings) != 1 || got.Meetings[0].ID != "MTG-1" {
			t.Fatalf("expected only the active meeting, got %+v", got.Meetings)
		}
		if len(got.Tickets) != 3 || got.TicketsByStatus[TicketOpen] != 2 || got.TicketsByStatus[TicketEscalated] != 1 {
			t.Fatalf("expected every ticket counted, got %+v", got.TicketsByStatus)
		}
		if len(got.Equipment) != 2 || got.Equipment[0].ID != "LAP-1" || got.EquipmentByStatus[equipment.StatusPending] != 1 {
			t.Fatalf("unexpected equipment %+v", got.Equipment)
		}
		if got.Equipment[0].CodeDigest != "" {
			t.Fatalf("expected code digests hidden, got %+v", got.Equipment[0])
		}
	})
}

func TestAdminService_AuditLog(t *testing.T) {
	trail := &auditReaderStub{records: []AuditRecord{{ID: "1", Action: "meeting.created"}, {ID: "2", Action: "ticket.opened"}}}
	svc := newAdminService(t, trail)
	superuser := Principal{UserID: "root", Role: RoleSuperuser}

	if _, err := svc.AuditLog(context.Background(), admin, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected admins refused, got %v", err)
	}

	got, err := svc.AuditLog(context.Background(), superuser, 1)
	if err != nil || len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("expected the newest record, got %+v (%v)", got, err)
	}
	if _, err := svc.AuditLog(context.Background(), superuser, 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if trail.limits[len(trail.limits)-1] != DefaultAuditLimit {
		t.Fatalf("expected the default limit, got %v", trail.limits)
	}

	if records, err := newAdminService(t, nil).AuditLog(context.Background(), superuser, 5); err != nil || len(records) != 0 {
		t.Fatalf("expected an empty log without a trail, got %+v (%v)", records, err)
	}
}
