package application

import (
	"strings"
	"time"

	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/scheduler"
)

// Role is the coarse permission level of a principal.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleSuperuser Role = "superuser"
)

// ParseRole maps a header or config value to a Role. Unknown values report false.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser, "":
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSuperuser:
		return RoleSuperuser, true
	}
	return "", false
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal may perform administrative operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperuser
}

// Room is a catalog entry for a bookable meeting room.
type Room struct {
	Name          string
	Capacity      int
	BridgeAccount string
}

// MeetingInput captures caller provided booking fields. Date is DD/MM, StartTime
// HH:MM and Duration H:MM.
type MeetingInput struct {
	Title        string
	Date         string
	StartTime    string
	Duration     string
	Participants int
	Medium       string
}

// Meeting represents a committed room reservation.
type Meeting struct {
	ID            string
	Title         string
	Date          string
	StartTime     string
	Duration      string
	Participants  int
	Medium        scheduler.Medium
	Room          string
	BridgeAccount string
	BridgeID      string
	BridgeLink    string
	CreatedBy     string
	CreatedAt     time.Time
	CancelledAt   time.Time
}

// Cancelled reports whether the meeting no longer holds its room.
func (m Meeting) Cancelled() bool { return !m.CancelledAt.IsZero() }

// BookMeetingParams wraps the data required to book a meeting.
type BookMeetingParams struct {
	Principal Principal
	Input     MeetingInput
}

// BookingResult is the tagged outcome of a booking attempt. Meeting is set only
// when Outcome is scheduler.OutcomeAssigned; Suggestions only for
// scheduler.OutcomeNeedsSlotChoice.
type BookingResult struct {
	Outcome     scheduler.OutcomeKind
	Meeting     Meeting
	Suggestions []scheduler.Suggestion
}

// CancelResult carries the cancelled meeting and the small overlapping meetings
// that could move into the freed room.
type CancelResult struct {
	Meeting     Meeting
	Relocatable []Meeting
}

// RequestEquipmentParams wraps the data required to request an item.
type RequestEquipmentParams struct {
	Principal Principal
	// Item is an item id or a case-insensitive name such as "laptop".
	Item      string
	MeetingID string
	ReturnBy  string
}

// EquipmentRequestResult is a pending item together with the plain access code.
// The code is never stored; only its digest is.
type EquipmentRequestResult struct {
	Item          equipment.Item
	Code          string
	CodeExpiresAt time.Time
}

// TicketStatus enumerates ticket states.
type TicketStatus string

const (
	TicketOpen      TicketStatus = "open"
	TicketEscalated TicketStatus = "escalated"
	TicketResolved  TicketStatus = "resolved"
	TicketClosed    TicketStatus = "closed"
)

// MaxTroubleshootAttempts bounds automated troubleshooting rounds per ticket.
const MaxTroubleshootAttempts = 2

// TicketEvent is one entry of a ticket's history.
type TicketEvent struct {
	At     time.Time
	Actor  string
	Action string
	Detail string
}

// Ticket represents an IT support ticket.
type Ticket struct {
	ID            string
	Issue         string
	Status        TicketStatus
	CreatedBy     string
	AssignedAdmin string
	Attempts      int
	Steps         []string
	History       []TicketEvent
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateTicketParams wraps the data required to open a ticket.
type CreateTicketParams struct {
	Principal Principal
	Issue     string
}

// TroubleshootResult is one round of automated guidance.
type TroubleshootResult struct {
	Steps    []string
	Resolved bool
}

// AuditRecord is one entry read back from the audit trail.
type AuditRecord struct {
	ID         string
	At         time.Time
	RequestID  string
	Actor      Principal
	Action     string
	EntityType string
	EntityID   string
}

// AuditEntry describes one state change worth recording.
type AuditEntry struct {
	Actor      Principal
	Action     string
	EntityType string
	EntityID   string
}

// Notification is an outbound message such as a confirmation email.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// BridgeRequest asks the video bridge to schedule a remote session.
type BridgeRequest struct {
	Account  string
	Title    string
	Start    time.Time
	Duration time.Duration
}

// BridgeSession is a provisioned remote session.
type BridgeSession struct {
	ID      string
	JoinURL string
}
