package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// anchorYear pins day/month dates to a leap year so 29/02 parses and every
// path compares slots on the same calendar.
const anchorYear = 2000

const (
	dateLayout  = "02/01"
	clockLayout = "15:04"
)

// ErrInvalidSlot is returned when a date, start time or duration cannot be parsed.
var ErrInvalidSlot = errors.New("scheduler: invalid slot")

// Medium describes how participants attend a meeting.
type Medium string

const (
	// MediumInPerson books a physical room only.
	MediumInPerson Medium = "in_person"
	// MediumRemote books a room that also carries a video bridge account.
	MediumRemote Medium = "remote"
)

// ParseMedium maps loose spellings to a Medium. Unknown values report false.
func ParseMedium(raw string) (Medium, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in_person", "in-person", "inperson", "offline", "physical":
		return MediumInPerson, true
	case "remote", "online", "virtual", "video":
		return MediumRemote, true
	}
	return "", false
}

// Room is a bookable catalog entry.
type Room struct {
	Name          string
	Capacity      int
	BridgeAccount string
}

// Booking is the slice of a committed meeting the resolver needs.
type Booking struct {
	ID        string
	Room      string
	Date      string
	StartTime string
	Duration  string
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// ParseSlot converts a DD/MM date, HH:MM start and HH:MM duration into an interval
// anchored on a fixed year.
func ParseSlot(date, start, duration string) (Interval, error) {
	day, err := time.Parse("2/1/2006 15:04", fmt.Sprintf("%s/%d %s", strings.TrimSpace(date), anchorYear, strings.TrimSpace(start)))
	if err != nil {
		return Interval{}, fmt.Errorf("%w: date %q start %q", ErrInvalidSlot, date, start)
	}
	length, err := ParseDuration(duration)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: day, End: day.Add(length)}, nil
}

// ParseDuration parses an HH:MM duration. Zero and negative lengths are rejected.
func ParseDuration(raw string) (time.Duration, error) {
	hours, minutes, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidSlot, raw)
	}
	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidSlot, raw)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidSlot, raw)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidSlot, raw)
	}
	return d, nil
}

// FormatDate renders the anchored date part of t as DD/MM.
func FormatDate(t time.Time) string { return t.Format(dateLayout) }

// FormatClock renders t as HH:MM.
func FormatClock(t time.Time) string { return t.Format(clockLayout) }

// ConflictType describes the type of conflict detected between bookings.
type ConflictType string

const (
	// ConflictTypeRoom indicates a room is double-booked.
	ConflictTypeRoom ConflictType = "room"
)

// Conflict details an overlapping booking relation.
type Conflict struct {
	WithBookingID string
	Type          ConflictType
	Room          string
}

// DetectConflicts identifies bookings in existing that hold the candidate's room
// during an overlapping interval. Existing entries that fail to parse are skipped.
func DetectConflicts(existing []Booking, candidate Booking) ([]Conflict, error) {
	want, err := ParseSlot(candidate.Date, candidate.StartTime, candidate.Duration)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, booking := range existing {
		if booking.ID != "" && booking.ID == candidate.ID {
			continue
		}
		if !strings.EqualFold(booking.Room, candidate.Room) {
			continue
		}
		held, err := ParseSlot(booking.Date, booking.StartTime, booking.Duration)
		if err != nil {
			continue
		}
		if held.Overlaps(want) {
			conflicts = append(conflicts, Conflict{
				WithBookingID: booking.ID,
				Type:          ConflictTypeRoom,
				Room:          booking.Room,
			})
		}
	}
	return conflicts, nil
}
