package persistence

import "time"

// Collection names used by the application.
const (
	CollectionMeetings      = "meetings"
	CollectionEquipment     = "equipment"
	CollectionTickets       = "tickets"
	CollectionFlowSnapshots = "flow_snapshots"
)

// Meeting is a committed room reservation.
type Meeting struct {
	ID            string    `cbor:"id"`
	Title         string    `cbor:"title"`
	Date          string    `cbor:"date"`
	StartTime     string    `cbor:"start_time"`
	Duration      string    `cbor:"duration"`
	Participants  int       `cbor:"participants"`
	Medium        string    `cbor:"medium"`
	Room          string    `cbor:"room"`
	BridgeAccount string    `cbor:"bridge_account,omitempty"`
	BridgeID      string    `cbor:"bridge_id,omitempty"`
	BridgeLink    string    `cbor:"bridge_link,omitempty"`
	CreatedBy     string    `cbor:"created_by"`
	CreatedAt     time.Time `cbor:"created_at"`
	CancelledAt   time.Time `cbor:"cancelled_at"`
}

// Equipment is the stored custody state of one item.
type Equipment struct {
	ID               string    `cbor:"id"`
	Name             string    `cbor:"name"`
	Status           string    `cbor:"status"`
	RequestedBy      string    `cbor:"requested_by,omitempty"`
	MeetingID        string    `cbor:"meeting_id,omitempty"`
	AssignedTo       string    `cbor:"assigned_to,omitempty"`
	CodeDigest       string    `cbor:"code_digest,omitempty"`
	CodeExpiresAt    time.Time `cbor:"code_expires_at"`
	RequestExpiresAt time.Time `cbor:"request_expires_at"`
	ReturnBy         time.Time `cbor:"return_by"`
	RequestedAt      time.Time `cbor:"requested_at"`
	ApprovedBy       string    `cbor:"approved_by,omitempty"`
	ApprovedAt       time.Time `cbor:"approved_at"`
	ReturnedAt       time.Time `cbor:"returned_at"`
	VerifiedBy       string    `cbor:"verified_by,omitempty"`
	VerifiedAt       time.Time `cbor:"verified_at"`
	Late             bool      `cbor:"late"`

	ExpiredCodeDigest string    `cbor:"expired_code_digest,omitempty"`
	RequestExpiredAt  time.Time `cbor:"request_expired_at"`
}

// TicketEvent is one entry of a ticket's history.
type TicketEvent struct {
	At     time.Time `cbor:"at"`
	Actor  string    `cbor:"actor"`
	Action string    `cbor:"action"`
	Detail string    `cbor:"detail,omitempty"`
}

// Ticket is a stored IT support ticket.
type Ticket struct {
	ID            string        `cbor:"id"`
	Issue         string        `cbor:"issue"`
	Status        string        `cbor:"status"`
	CreatedBy     string        `cbor:"created_by"`
	AssignedAdmin string        `cbor:"assigned_admin,omitempty"`
	Attempts      int           `cbor:"attempts"`
	Steps         []string      `cbor:"steps,omitempty"`
	History       []TicketEvent `cbor:"history,omitempty"`
	CreatedAt     time.Time     `cbor:"created_at"`
	UpdatedAt     time.Time     `cbor:"updated_at"`
}
