package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/persistence"
	"github.com/example/intellidesk/internal/scheduler"
)

var meetingCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// User returns a regular principal.
func User(id string) application.Principal {
	return application.Principal{UserID: id, Role: application.RoleUser}
}

// Admin returns an administrator principal.
func Admin(id string) application.Principal {
	return application.Principal{UserID: id, Role: application.RoleAdmin}
}

func Superuser(id string) application.Principal {
	return application.Principal{UserID: id, Role: application.RoleSuperuser}
}

// Rooms is a compact catalog: one room per capacity tier, the last without a
// bridge account.
func Rooms() []application.Room {
	return []application.Room{
		{Name: "Room 1", Capacity: 11, BridgeAccount: "WebEx-1"},
		{Name: "Room 6", Capacity: 15, BridgeAccount: "WebEx-3"},
		{Name: "Room 9", Capacity: 21},
	}
}

// EquipmentCatalog lists two laptops and a monitor.
func EquipmentCatalog() []application.EquipmentItem {
	return []application.EquipmentItem{
		{ID: "LAP-1", Name: "Laptop"},
		{ID: "LAP-2", Name: "Laptop"},
		{ID: "MON-1", Name: "Monitor"},
	}
}

// MeetingFixture is a committed meeting that can be rendered as a stored record
// or as booking input.
type MeetingFixture struct {
	ID           string
	Title        string
	Date         string
	StartTime    string
	Duration     string
	Participants int
	Medium       scheduler.Medium
	Room         string
	CreatedBy    string
	CreatedAt    time.Time
}

// MeetingOption customises a MeetingFixture.
type MeetingOption func(*MeetingFixture)

// NewMeetingFixture returns a one-hour in-person meeting for five people in
// Room 1 at 10:00 on the reference date.
func NewMeetingFixture(opts ...MeetingOption) MeetingFixture {
	idx := atomic.AddUint64(&meetingCounter, 1)
	fixture := MeetingFixture{
		ID:           fmt.Sprintf("MTG-FIX-%d", idx),
		Title:        fmt.Sprintf("Meeting %d", idx),
		Date:         scheduler.FormatDate(referenceTime),
		StartTime:    "10:00",
		Duration:     "1:00",
		Participants: 5,
		Medium:       scheduler.MediumInPerson,
		Room:         "Room 1",
		CreatedBy:    "alice",
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMeetingID overrides the meeting id.
func WithMeetingID(id string) MeetingOption {
	return func(f *MeetingFixture) { f.ID = id }
}

// WithMeetingSlot overrides date (DD/MM), start (HH:MM) and duration (H:MM).
func WithMeetingSlot(date, start, duration string) MeetingOption {
	return func(f *MeetingFixture) {
		f.Date = date
		f.StartTime = start
		f.Duration = duration
	}
}

// WithMeetingRoom overrides the assigned room.
func WithMeetingRoom(room string) MeetingOption {
	return func(f *MeetingFixture) { f.Room = room }
}

// WithMeetingParticipants overrides the participant count.
func WithMeetingParticipants(n int) MeetingOption {
	return func(f *MeetingFixture) { f.Participants = n }
}

// WithMeetingCreator overrides the booking user.
func WithMeetingCreator(userID string) MeetingOption {
	return func(f *MeetingFixture) { f.CreatedBy = userID }
}

// WithMeetingMedium overrides the medium.
func WithMeetingMedium(m scheduler.Medium) MeetingOption {
	return func(f *MeetingFixture) { f.Medium = m }
}

// Persistence renders the fixture as a stored record.
func (f MeetingFixture) Persistence() persistence.Meeting {
	return persistence.Meeting{
		ID:           f.ID,
		Title:        f.Title,
		Date:         f.Date,
		StartTime:    f.StartTime,
		Duration:     f.Duration,
		Participants: f.Participants,
		Medium:       string(f.Medium),
		Room:         f.Room,
		CreatedBy:    f.CreatedBy,
		CreatedAt:    f.CreatedAt,
	}
}

// Input renders the fixture as booking input.
func (f MeetingFixture) Input() application.MeetingInput {
	return application.MeetingInput{
		Title:        f.Title,
		Date:         f.Date,
		StartTime:    f.StartTime,
		Duration:     f.Duration,
		Participants: f.Participants,
		Medium:       string(f.Medium),
	}
}

// Booking renders the fixture as a resolver booking.
func (f MeetingFixture) Booking() scheduler.Booking {
	return scheduler.Booking{ID: f.ID, Room: f.Room, Date: f.Date, StartTime: f.StartTime, Duration: f.Duration}
}
