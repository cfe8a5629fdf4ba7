package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/intellidesk/internal/scheduler"
)

// RoomService exposes the static room catalog.
type RoomService struct {
	rooms  []Room
	logger *slog.Logger
}

// NewRoomService constructs a room service over the provided catalog.
func NewRoomService(rooms []Room) *RoomService {
	return NewRoomServiceWithLogger(rooms, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(rooms []Room, logger *slog.Logger) *RoomService {
	catalog := make([]Room, 0, len(rooms))
	for _, r := range rooms {
		r.Name = strings.TrimSpace(r.Name)
		r.BridgeAccount = strings.TrimSpace(r.BridgeAccount)
		catalog = append(catalog, r)
	}
	sort.SliceStable(catalog, func(i, j int) bool {
		if catalog[i].Capacity != catalog[j].Capacity {
			return catalog[i].Capacity < catalog[j].Capacity
		}
		return catalog[i].Name < catalog[j].Name
	})
	return &RoomService{rooms: catalog, logger: defaultLogger(logger)}
}

// ValidateRooms reports catalog entries that cannot be booked.
func ValidateRooms(rooms []Room) error {
	vErr := &ValidationError{}
	seen := make(map[string]struct{}, len(rooms))
	for i, r := range rooms {
		field := fmt.Sprintf("rooms[%d]", i)
		name := strings.ToLower(strings.TrimSpace(r.Name))
		switch {
		case name == "":
			vErr.add(field, "name is required")
		case r.Capacity <= 0:
			vErr.add(field, "capacity must be positive")
		}
		if _, dup := seen[name]; dup && name != "" {
			vErr.add(field, "duplicate room name")
		}
		seen[name] = struct{}{}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// ListRooms returns the catalog for any authenticated user, smallest room first.
func (s *RoomService) ListRooms(ctx context.Context, principal Principal) ([]Room, error) {
	if s == nil {
		return nil, fmt.Errorf("RoomService is nil")
	}
	serviceLogger(ctx, s.logger, "RoomService", "ListRooms", "principal_id", principal.UserID).
		DebugContext(ctx, "rooms listed", "count", len(s.rooms))
	out := make([]Room, len(s.rooms))
	copy(out, s.rooms)
	return out, nil
}

// schedulerRooms returns the catalog in the resolver's shape.
func (s *RoomService) schedulerRooms() []scheduler.Room {
	if s == nil {
		return nil
	}
	out := make([]scheduler.Room, len(s.rooms))
	for i, r := range s.rooms {
		out[i] = scheduler.Room{Name: r.Name, Capacity: r.Capacity, BridgeAccount: r.BridgeAccount}
	}
	return out
}
