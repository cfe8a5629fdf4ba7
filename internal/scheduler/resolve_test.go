package scheduler

import (
	"reflect"
	"testing"
)

func catalog() []Room {
	return []Room{
		{Name: "Room 9", Capacity: 21, BridgeAccount: "WebEx-2"},
		{Name: "Room 6", Capacity: 15, BridgeAccount: "WebEx-3"},
		{Name: "Room 1", Capacity: 11, BridgeAccount: "WebEx-1"},
		{Name: "Room 2", Capacity: 11},
	}
}

func TestResolve(t *testing.T) {
	t.Run("assigns smallest sufficient room", func(t *testing.T) {
		out, err := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 5, Medium: MediumInPerson}, catalog(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Kind != OutcomeAssigned || out.Room.Name != "Room 1" {
			t.Fatalf("expected Room 1 assigned, got %+v", out)
		}
	})

	t.Run("catalog order does not change the choice", func(t *testing.T) {
		out, _ := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 12}, catalog(), nil)
		if out.Room.Name != "Room 6" {
			t.Fatalf("expected Room 6, got %+v", out)
		}
	})

	t.Run("remote requires a bridge account", func(t *testing.T) {
		booked := []Booking{{ID: "m-1", Room: "Room 1", Date: "10/06", StartTime: "10:00", Duration: "01:00"}}
		out, _ := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 4, Medium: MediumRemote}, catalog(), booked)
		if out.Kind != OutcomeAssigned || out.Room.Name != "Room 6" {
			t.Fatalf("expected Room 6 with bridge, got %+v", out)
		}
	})

	t.Run("second request gets next free room", func(t *testing.T) {
		booked := []Booking{{ID: "m-1", Room: "Room 1", Date: "10/06", StartTime: "10:00", Duration: "01:00"}}
		out, _ := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 5}, catalog(), booked)
		if out.Kind != OutcomeAssigned || out.Room.Name != "Room 2" {
			t.Fatalf("expected Room 2, got %+v", out)
		}
	})

	t.Run("too many participants is infeasible", func(t *testing.T) {
		out, _ := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 40}, catalog(), nil)
		if out.Kind != OutcomeInfeasible || len(out.Suggestions) != 0 {
			t.Fatalf("expected infeasible, got %+v", out)
		}
	})

	t.Run("full single room yields three suggestions for a short meeting", func(t *testing.T) {
		rooms := []Room{{Name: "Room 1", Capacity: 11}}
		booked := []Booking{{ID: "m-1", Room: "Room 1", Date: "10/06", StartTime: "10:00", Duration: "00:30"}}
		out, err := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "00:30", Participants: 5}, rooms, booked)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []Suggestion{{"10/06", "10:30"}, {"10/06", "11:00"}, {"10/06", "11:30"}}
		if out.Kind != OutcomeNeedsSlotChoice || !reflect.DeepEqual(out.Suggestions, want) {
			t.Fatalf("expected %+v, got %+v", want, out)
		}
	})

	t.Run("hour long conflict skips still overlapping offset", func(t *testing.T) {
		rooms := []Room{{Name: "Room 1", Capacity: 11}}
		booked := []Booking{{ID: "m-1", Room: "Room 1", Date: "10/06", StartTime: "10:00", Duration: "01:00"}}
		out, _ := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 5}, rooms, booked)
		want := []Suggestion{{"10/06", "11:00"}, {"10/06", "11:30"}}
		if !reflect.DeepEqual(out.Suggestions, want) {
			t.Fatalf("expected %+v, got %+v", want, out.Suggestions)
		}
	})

	t.Run("suggestions roll over midnight", func(t *testing.T) {
		rooms := []Room{{Name: "Room 1", Capacity: 11}}
		booked := []Booking{{ID: "m-1", Room: "Room 1", Date: "10/06", StartTime: "23:00", Duration: "00:30"}}
		out, err := Resolve(Request{Date: "10/06", StartTime: "23:00", Duration: "00:30", Participants: 2}, rooms, booked)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := out.Suggestions; len(got) != 3 || got[1] != (Suggestion{"11/06", "00:00"}) {
			t.Fatalf("expected rollover suggestion, got %+v", got)
		}
	})

	t.Run("no free alternative is infeasible", func(t *testing.T) {
		rooms := []Room{{Name: "Room 1", Capacity: 11}}
		booked := []Booking{{ID: "m-1", Room: "Room 1", Date: "10/06", StartTime: "09:00", Duration: "04:00"}}
		out, _ := Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 5}, rooms, booked)
		if out.Kind != OutcomeInfeasible {
			t.Fatalf("expected infeasible, got %+v", out)
		}
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		rooms := catalog()
		before := append([]Room(nil), rooms...)
		_, _ = Resolve(Request{Date: "10/06", StartTime: "10:00", Duration: "01:00", Participants: 1}, rooms, nil)
		if !reflect.DeepEqual(rooms, before) {
			t.Fatalf("expected rooms untouched, got %+v", rooms)
		}
	})
}

func TestOutcomeKindString(t *testing.T) {
	if OutcomeNeedsSlotChoice.String() != "needs_slot_choice" || OutcomeInfeasible.String() != "infeasible" {
		t.Fatalf("unexpected outcome labels")
	}
}
