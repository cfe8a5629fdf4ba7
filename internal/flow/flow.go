// Package flow holds multi-turn conversation state.
//
// A Flow is owned by one user and has an immutable Kind. Records are versioned;
// Normalize brings any decoded or partially built record to the current schema
// and is idempotent on records that already conform.
package flow

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// SchemaVersion is the current record layout.
const SchemaVersion = 1

// DefaultTTL is the idle lifetime of a flow.
const DefaultTTL = 15 * time.Minute

// ReferenceDateLayout formats the day a flow started (DD/MM/YYYY).
const ReferenceDateLayout = "02/01/2006"

var (
	// ErrNotFound is returned when a flow does not exist or has expired.
	ErrNotFound = errors.New("flow: not found")
	// ErrUnsupportedKind is returned for kinds outside Kind's enumeration.
	ErrUnsupportedKind = errors.New("flow: unsupported kind")
	// ErrUnknownStep is returned when a step value is not recognised.
	ErrUnknownStep = errors.New("flow: unknown step")
)

// Kind is the task a flow drives.
type Kind string

const (
	KindMeeting   Kind = "meeting"
	KindEquipment Kind = "equipment"
	KindTicket    Kind = "ticket"
)

// ParseKind accepts canonical kinds and the route names older records used.
func ParseKind(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "meeting", "meeting_booking", "portal":
		return KindMeeting, true
	case "equipment", "equipment_assignment":
		return KindEquipment, true
	case "ticket", "tickets":
		return KindTicket, true
	}
	return "", false
}

// Step is a flow's position in its state machine.
type Step string

const (
	StepCollecting Step = "collecting"
	StepConfirming Step = "confirming"
)

// ParseStep accepts canonical steps and their short legacy spellings.
func ParseStep(raw string) (Step, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "collecting", "collect":
		return StepCollecting, true
	case "confirming", "confirm":
		return StepConfirming, true
	}
	return "", false
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

func parseSpeaker(raw string) Speaker {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "assistant", "bot", "system":
		return SpeakerAssistant
	default:
		return SpeakerUser
	}
}

// Turn is one utterance in a flow's history.
type Turn struct {
	Speaker Speaker   `json:"speaker" cbor:"speaker"`
	Text    string    `json:"text" cbor:"text"`
	At      time.Time `json:"at,omitzero" cbor:"at"`
}

// Candidate is an alternative slot offered during slot selection.
type Candidate struct {
	Date      string `json:"date" cbor:"date"`
	StartTime string `json:"start_time" cbor:"start_time"`
}

// Label renders the candidate as shown to users.
func (c Candidate) Label() string { return c.Date + " " + c.StartTime }

// Flow is one multi-turn conversational task.
type Flow struct {
	SchemaVersion int               `json:"schema_version" cbor:"schema_version"`
	ID            string            `json:"id" cbor:"id"`
	UserID        string            `json:"user_id" cbor:"user_id"`
	Kind          Kind              `json:"kind" cbor:"kind"`
	Step          Step              `json:"step" cbor:"step"`
	Data          map[string]string `json:"data" cbor:"data"`
	History       []Turn            `json:"history" cbor:"history"`
	Candidates    []Candidate       `json:"candidates,omitempty" cbor:"candidates,omitempty"`
	ReferenceDate string            `json:"reference_date" cbor:"reference_date"`
	CreatedAt     time.Time         `json:"created_at" cbor:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" cbor:"updated_at"`
	ExpiresAt     time.Time         `json:"expires_at" cbor:"expires_at"`
}

// SelectingSlot reports whether the flow is waiting for a slot choice.
func (f Flow) SelectingSlot() bool {
	return f.Step == StepConfirming && len(f.Candidates) > 0
}

// Expired reports whether the flow is past its expiry at now.
func (f Flow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// RecentHistory returns at most n of the latest turns. n <= 0 returns all turns.
func (f Flow) RecentHistory(n int) []Turn {
	if n <= 0 || len(f.History) <= n {
		return append([]Turn(nil), f.History...)
	}
	return append([]Turn(nil), f.History[len(f.History)-n:]...)
}

// Clone returns a deep copy.
func Clone(f Flow) Flow {
	out := f
	if f.Data != nil {
		out.Data = make(map[string]string, len(f.Data))
		for k, v := range f.Data {
			out.Data[k] = v
		}
	}
	if f.History != nil {
		out.History = append([]Turn(nil), f.History...)
	}
	if f.Candidates != nil {
		out.Candidates = append([]Candidate(nil), f.Candidates...)
	}
	return out
}

// Normalize returns a copy of f that satisfies the current schema. Unknown
// steps fall back to collecting, missing collections become empty, times are
// stored in UTC and the reference date is derived from CreatedAt.
func Normalize(f Flow) Flow {
	out := Clone(f)
	out.SchemaVersion = SchemaVersion
	out.ID = strings.TrimSpace(out.ID)
	out.UserID = strings.TrimSpace(out.UserID)

	if kind, ok := ParseKind(string(out.Kind)); ok {
		out.Kind = kind
	}
	if step, ok := ParseStep(string(out.Step)); ok {
		out.Step = step
	} else {
		out.Step = StepCollecting
	}

	if out.Data == nil {
		out.Data = map[string]string{}
	}
	if out.History == nil {
		out.History = []Turn{}
	}
	for i := range out.History {
		out.History[i].Speaker = parseSpeaker(string(out.History[i].Speaker))
		out.History[i].At = utc(out.History[i].At)
	}
	if len(out.Candidates) == 0 || out.Step != StepConfirming {
		out.Candidates = nil
	}

	out.CreatedAt = utc(out.CreatedAt)
	out.UpdatedAt = utc(out.UpdatedAt)
	out.ExpiresAt = utc(out.ExpiresAt)
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}
	if out.ReferenceDate == "" && !out.CreatedAt.IsZero() {
		out.ReferenceDate = out.CreatedAt.Format(ReferenceDateLayout)
	}
	return out
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

// MergeData returns existing overlaid with update. Blank values in update are
// ignored so partial extraction results never erase collected fields.
func MergeData(existing, update map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(update))
	for k, v := range existing {
		out[k] = v
	}
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := strings.TrimSpace(k)
		value := strings.TrimSpace(update[k])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// Prune splits flows into live and expired at now, preserving order.
func Prune(flows []Flow, now time.Time) (live, expired []Flow) {
	for _, f := range flows {
		if f.Expired(now) {
			expired = append(expired, f)
			continue
		}
		live = append(live, f)
	}
	return live, expired
}

// LastTouched returns the flow with the latest UpdatedAt. Ties go to the flow
// appearing later in flows.
func LastTouched(flows []Flow) (Flow, bool) {
	if len(flows) == 0 {
		return Flow{}, false
	}
	best := 0
	for i := 1; i < len(flows); i++ {
		if !flows[i].UpdatedAt.Before(flows[best].UpdatedAt) {
			best = i
		}
	}
	return flows[best], true
}
