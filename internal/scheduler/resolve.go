package scheduler

import (
	"sort"
	"strings"
	"time"
)

const (
	// SuggestionStep is how far each alternative start moves past the previous one.
	SuggestionStep = 30 * time.Minute
	// SuggestionAttempts bounds the number of alternative starts examined.
	SuggestionAttempts = 3
)

// Request is a desired reservation as extracted from conversation.
type Request struct {
	Date         string
	StartTime    string
	Duration     string
	Participants int
	Medium       Medium
}

// Suggestion is an alternative start that has at least one free room.
type Suggestion struct {
	Date      string
	StartTime string
}

// Label renders a suggestion for display and for matching user replies.
func (s Suggestion) Label() string {
	return s.Date + " " + s.StartTime
}

// OutcomeKind tags the result of Resolve.
type OutcomeKind int

const (
	// OutcomeInfeasible means no room fits at the requested time or any alternative.
	OutcomeInfeasible OutcomeKind = iota
	// OutcomeAssigned means Room holds the chosen resource.
	OutcomeAssigned
	// OutcomeNeedsSlotChoice means the requested time is full but Suggestions are open.
	OutcomeNeedsSlotChoice
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAssigned:
		return "assigned"
	case OutcomeNeedsSlotChoice:
		return "needs_slot_choice"
	default:
		return "infeasible"
	}
}

// Outcome is the tagged result of a resolution attempt.
type Outcome struct {
	Kind        OutcomeKind
	Room        Room
	Suggestions []Suggestion
}

// Resolve assigns the smallest sufficient free room for req against the committed
// bookings, or proposes alternative start times when the requested slot is full.
// It never mutates its inputs.
func Resolve(req Request, rooms []Room, committed []Booking) (Outcome, error) {
	want, err := ParseSlot(req.Date, req.StartTime, req.Duration)
	if err != nil {
		return Outcome{}, err
	}

	candidates := candidateRooms(req, rooms)
	if len(candidates) == 0 {
		return Outcome{Kind: OutcomeInfeasible}, nil
	}

	busy := occupancy(committed)
	if room, ok := firstFree(candidates, busy, want); ok {
		return Outcome{Kind: OutcomeAssigned, Room: room}, nil
	}

	suggestions := suggest(candidates, busy, want)
	if len(suggestions) == 0 {
		return Outcome{Kind: OutcomeInfeasible}, nil
	}
	return Outcome{Kind: OutcomeNeedsSlotChoice, Suggestions: suggestions}, nil
}

// suggest returns every alternative start, in SuggestionStep increments after
// the requested one, at which some candidate room is free.
func suggest(candidates []Room, busy map[string][]Interval, want Interval) []Suggestion {
	length := want.End.Sub(want.Start)
	var out []Suggestion
	for attempt := 1; attempt <= SuggestionAttempts; attempt++ {
		start := want.Start.Add(time.Duration(attempt) * SuggestionStep)
		slot := Interval{Start: start, End: start.Add(length)}
		if _, ok := firstFree(candidates, busy, slot); ok {
			out = append(out, Suggestion{Date: FormatDate(start), StartTime: FormatClock(start)})
		}
	}
	return out
}

// candidateRooms filters rooms that can hold the request, smallest first.
func candidateRooms(req Request, rooms []Room) []Room {
	out := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Capacity < req.Participants {
			continue
		}
		if req.Medium == MediumRemote && strings.TrimSpace(room.BridgeAccount) == "" {
			continue
		}
		out = append(out, room)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Capacity < out[j].Capacity
	})
	return out
}

func occupancy(committed []Booking) map[string][]Interval {
	busy := make(map[string][]Interval, len(committed))
	for _, booking := range committed {
		held, err := ParseSlot(booking.Date, booking.StartTime, booking.Duration)
		if err != nil {
			continue
		}
		key := strings.ToLower(booking.Room)
		busy[key] = append(busy[key], held)
	}
	return busy
}

func firstFree(candidates []Room, busy map[string][]Interval, want Interval) (Room, bool) {
	for _, room := range candidates {
		free := true
		for _, held := range busy[strings.ToLower(room.Name)] {
			if held.Overlaps(want) {
				free = false
				break
			}
		}
		if free {
			return room, true
		}
	}
	return Room{}, false
}
