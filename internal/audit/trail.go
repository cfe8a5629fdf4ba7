// Package audit appends lifecycle and commit events to a JSON-lines trail.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/logging"
)

// Actor identifies who caused an event.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Entity identifies what an event touched.
type Entity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event is one line of the trail.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	RequestID string    `json:"request_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Action    string    `json:"action"`
	Entity    Entity    `json:"entity"`
}

// Trail serializes events to w, one JSON object per line. It is safe for
// concurrent use.
type Trail struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	path    string
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New returns a trail writing to w.
func New(w io.Writer) *Trail {
	return &Trail{
		w:       w,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}
}

// Open appends to the file at path, creating it if needed.
func Open(path string) (*Trail, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	t := New(f)
	t.closer = f
	t.path = path
	return t, nil
}

// UseClock overrides the event timestamp source.
func (t *Trail) UseClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Record appends entry. The request id is taken from ctx when present.
func (t *Trail) Record(ctx context.Context, entry application.AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), t.entropy)
	if err != nil {
		return fmt.Errorf("audit: generating id: %w", err)
	}
	line, err := json.Marshal(Event{
		ID:        id.String(),
		Timestamp: now,
		RequestID: logging.RequestIDFromContext(ctx),
		Actor:     Actor{ID: entry.Actor.UserID, Role: string(entry.Actor.Role)},
		Action:    entry.Action,
		Entity:    Entity{Type: entry.EntityType, ID: entry.EntityID},
	})
	if err != nil {
		return fmt.Errorf("audit: encoding event: %w", err)
	}
	if _, err := t.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: writing event: %w", err)
	}
	return nil
}

// Read returns the newest limit events in the trail file, oldest first. A
// limit of zero or less returns every event. Lines that do not decode are
// skipped. Trails built with New have no file and read as empty.
func (t *Trail) Read(ctx context.Context, limit int) ([]application.AuditRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return nil, nil
	}

	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", t.path, err)
	}
	defer f.Close()

	var out []application.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Action == "" {
			continue
		}
		out = append(out, ev.record())
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read %s: %w", t.path, err)
	}
	return out, nil
}

func (e Event) record() application.AuditRecord {
	role, _ := application.ParseRole(e.Actor.Role)
	return application.AuditRecord{
		ID:         e.ID,
		At:         e.Timestamp,
		RequestID:  e.RequestID,
		Actor:      application.Principal{UserID: e.Actor.ID, Role: role},
		Action:     e.Action,
		EntityType: e.Entity.Type,
		EntityID:   e.Entity.ID,
	}
}

// Close releases the underlying file, if the trail owns one.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}

var (
	_ application.AuditRecorder = (*Trail)(nil)
	_ application.AuditReader   = (*Trail)(nil)
)
