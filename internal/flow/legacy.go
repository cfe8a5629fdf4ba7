package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// wireFlow accepts every field spelling a stored flow has used: the current
// schema plus the unversioned layout (flow_id, type, current_date, role/content
// turns and a unix expires_at).
type wireFlow struct {
	SchemaVersion int             `json:"schema_version"`
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id"`
	UserID        string          `json:"user_id"`
	Kind          string          `json:"kind"`
	Type          string          `json:"type"`
	Step          string          `json:"step"`
	Data          map[string]any  `json:"data"`
	History       []wireTurn      `json:"history"`
	Candidates    []Candidate     `json:"candidates"`
	ReferenceDate string          `json:"reference_date"`
	CurrentDate   string          `json:"current_date"`
	CreatedAt     json.RawMessage `json:"created_at"`
	UpdatedAt     json.RawMessage `json:"updated_at"`
	ExpiresAt     json.RawMessage `json:"expires_at"`
}

type wireTurn struct {
	Speaker string          `json:"speaker"`
	Role    string          `json:"role"`
	Text    string          `json:"text"`
	Content string          `json:"content"`
	At      json.RawMessage `json:"at"`
}

// DecodeJSON reads a stored flow in any known layout and returns it normalized.
func DecodeJSON(data []byte) (Flow, error) {
	var w wireFlow
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Flow{}, fmt.Errorf("decode flow: %w", err)
	}
	if w.SchemaVersion > SchemaVersion {
		return Flow{}, fmt.Errorf("decode flow: schema version %d is newer than %d", w.SchemaVersion, SchemaVersion)
	}

	f := Flow{
		ID:            firstNonEmpty(w.ID, w.FlowID),
		UserID:        w.UserID,
		Kind:          Kind(firstNonEmpty(w.Kind, w.Type)),
		Step:          Step(w.Step),
		ReferenceDate: firstNonEmpty(w.ReferenceDate, w.CurrentDate),
		Candidates:    w.Candidates,
	}
	if f.ID == "" {
		return Flow{}, fmt.Errorf("decode flow: missing id")
	}
	if _, ok := ParseKind(string(f.Kind)); !ok {
		return Flow{}, fmt.Errorf("decode flow %s: %w %q", f.ID, ErrUnsupportedKind, f.Kind)
	}

	if len(w.Data) > 0 {
		f.Data = make(map[string]string, len(w.Data))
		for k, v := range w.Data {
			if s := stringify(v); s != "" {
				f.Data[k] = s
			}
		}
	}
	for _, turn := range w.History {
		at, err := decodeTime(turn.At)
		if err != nil {
			return Flow{}, fmt.Errorf("decode flow %s: turn time: %w", f.ID, err)
		}
		f.History = append(f.History, Turn{
			Speaker: Speaker(firstNonEmpty(turn.Speaker, turn.Role)),
			Text:    firstNonEmpty(turn.Text, turn.Content),
			At:      at,
		})
	}

	var err error
	if f.CreatedAt, err = decodeTime(w.CreatedAt); err != nil {
		return Flow{}, fmt.Errorf("decode flow %s: created_at: %w", f.ID, err)
	}
	if f.UpdatedAt, err = decodeTime(w.UpdatedAt); err != nil {
		return Flow{}, fmt.Errorf("decode flow %s: updated_at: %w", f.ID, err)
	}
	if f.ExpiresAt, err = decodeTime(w.ExpiresAt); err != nil {
		return Flow{}, fmt.Errorf("decode flow %s: expires_at: %w", f.ID, err)
	}
	if f.CreatedAt.IsZero() && !f.ExpiresAt.IsZero() {
		f.CreatedAt = f.ExpiresAt.Add(-DefaultTTL)
	}

	return Normalize(f), nil
}

// DecodeJSONDump reads a flows.json dump: a list of flows, an object keyed by
// flow id, or an object keyed by user id holding either of those. Flows
// without a user_id take the enclosing user key.
func DecodeJSONDump(data []byte) ([]Flow, error) {
	var flows []Flow
	if err := collectFlows(bytes.TrimSpace(data), "", 0, &flows); err != nil {
		return nil, err
	}
	return flows, nil
}

func collectFlows(raw []byte, user string, depth int, out *[]Flow) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if depth > 2 {
		return fmt.Errorf("decode flows: nested too deeply")
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decode flows: %w", err)
		}
		for _, item := range items {
			if err := collectFlows(bytes.TrimSpace(item), user, depth+1, out); err != nil {
				return err
			}
		}
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("decode flows: %w", err)
		}
		if isFlowObject(fields) {
			f, err := DecodeJSON(raw)
			if err != nil {
				return err
			}
			if f.UserID == "" {
				f.UserID = user
			}
			*out = append(*out, f)
			return nil
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			owner := user
			if owner == "" && depth == 0 {
				owner = k
			}
			if err := collectFlows(bytes.TrimSpace(fields[k]), owner, depth+1, out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("decode flows: unexpected %q", raw[0])
	}
}

func isFlowObject(fields map[string]json.RawMessage) bool {
	for _, key := range []string{"id", "flow_id"} {
		if v, ok := fields[key]; ok && len(v) > 0 && v[0] == '"' {
			return true
		}
	}
	return false
}

// EncodeJSON writes f in the current layout.
func EncodeJSON(f Flow) ([]byte, error) {
	return json.Marshal(Normalize(f))
}

// decodeTime accepts RFC 3339 strings and unix seconds.
func decodeTime(raw json.RawMessage) (time.Time, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return time.Time{}, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	secs, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return time.Time{}, err
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(b)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
