package application

import (
	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/persistence"
	"github.com/example/intellidesk/internal/scheduler"
)

func meetingFromRecord(r persistence.Meeting) Meeting {
	return Meeting{
		ID:            r.ID,
		Title:         r.Title,
		Date:          r.Date,
		StartTime:     r.StartTime,
		Duration:      r.Duration,
		Participants:  r.Participants,
		Medium:        scheduler.Medium(r.Medium),
		Room:          r.Room,
		BridgeAccount: r.BridgeAccount,
		BridgeID:      r.BridgeID,
		BridgeLink:    r.BridgeLink,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		CancelledAt:   r.CancelledAt,
	}
}

func meetingToRecord(m Meeting) persistence.Meeting {
	return persistence.Meeting{
		ID:            m.ID,
		Title:         m.Title,
		Date:          m.Date,
		StartTime:     m.StartTime,
		Duration:      m.Duration,
		Participants:  m.Participants,
		Medium:        string(m.Medium),
		Room:          m.Room,
		BridgeAccount: m.BridgeAccount,
		BridgeID:      m.BridgeID,
		BridgeLink:    m.BridgeLink,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		CancelledAt:   m.CancelledAt,
	}
}

// activeBookings returns the resolver view of meetings that still hold a room.
func activeBookings(records []persistence.Meeting) []scheduler.Booking {
	out := make([]scheduler.Booking, 0, len(records))
	for _, r := range records {
		if !r.CancelledAt.IsZero() {
			continue
		}
		out = append(out, scheduler.Booking{ID: r.ID, Room: r.Room, Date: r.Date, StartTime: r.StartTime, Duration: r.Duration})
	}
	return out
}

func itemFromRecord(r persistence.Equipment) equipment.Item {
	return equipment.Item{
		ID:               r.ID,
		Name:             r.Name,
		Status:           equipment.Status(r.Status),
		RequestedBy:      r.RequestedBy,
		MeetingID:        r.MeetingID,
		AssignedTo:       r.AssignedTo,
		CodeDigest:       r.CodeDigest,
		CodeExpiresAt:    r.CodeExpiresAt,
		RequestExpiresAt: r.RequestExpiresAt,
		ReturnBy:         r.ReturnBy,
		RequestedAt:      r.RequestedAt,
		ApprovedBy:       r.ApprovedBy,
		ApprovedAt:       r.ApprovedAt,
		ReturnedAt:       r.ReturnedAt,
		VerifiedBy:       r.VerifiedBy,
		VerifiedAt:       r.VerifiedAt,
		Late:             r.Late,

		ExpiredCodeDigest: r.ExpiredCodeDigest,
		RequestExpiredAt:  r.RequestExpiredAt,
	}
}

func itemToRecord(i equipment.Item) persistence.Equipment {
	return persistence.Equipment{
		ID:               i.ID,
		Name:             i.Name,
		Status:           string(i.Status),
		RequestedBy:      i.RequestedBy,
		MeetingID:        i.MeetingID,
		AssignedTo:       i.AssignedTo,
		CodeDigest:       i.CodeDigest,
		CodeExpiresAt:    i.CodeExpiresAt,
		RequestExpiresAt: i.RequestExpiresAt,
		ReturnBy:         i.ReturnBy,
		RequestedAt:      i.RequestedAt,
		ApprovedBy:       i.ApprovedBy,
		ApprovedAt:       i.ApprovedAt,
		ReturnedAt:       i.ReturnedAt,
		VerifiedBy:       i.VerifiedBy,
		VerifiedAt:       i.VerifiedAt,
		Late:             i.Late,

		ExpiredCodeDigest: i.ExpiredCodeDigest,
		RequestExpiredAt:  i.RequestExpiredAt,
	}
}

func ticketFromRecord(r persistence.Ticket) Ticket {
	t := Ticket{
		ID:            r.ID,
		Issue:         r.Issue,
		Status:        TicketStatus(r.Status),
		CreatedBy:     r.CreatedBy,
		AssignedAdmin: r.AssignedAdmin,
		Attempts:      r.Attempts,
		Steps:         append([]string(nil), r.Steps...),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, e := range r.History {
		t.History = append(t.History, TicketEvent{At: e.At, Actor: e.Actor, Action: e.Action, Detail: e.Detail})
	}
	return t
}

func ticketToRecord(t Ticket) persistence.Ticket {
	r := persistence.Ticket{
		ID:            t.ID,
		Issue:         t.Issue,
		Status:        string(t.Status),
		CreatedBy:     t.CreatedBy,
		AssignedAdmin: t.AssignedAdmin,
		Attempts:      t.Attempts,
		Steps:         append([]string(nil), t.Steps...),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	for _, e := range t.History {
		r.History = append(r.History, persistence.TicketEvent{At: e.At, Actor: e.Actor, Action: e.Action, Detail: e.Detail})
	}
	return r
}
