package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/intellidesk/internal/application"
)

// Catalog is the static inventory: bookable rooms and lendable equipment.
type Catalog struct {
	Rooms     []RoomEntry      `yaml:"rooms"`
	Equipment []EquipmentEntry `yaml:"equipment"`
}

// RoomEntry is one bookable room.
type RoomEntry struct {
	Name          string `yaml:"name"`
	Capacity      int    `yaml:"capacity"`
	BridgeAccount string `yaml:"bridge_account"`
}

// EquipmentEntry is one lendable item.
type EquipmentEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DefaultCatalog returns the built-in office inventory.
func DefaultCatalog() Catalog {
	return Catalog{
		Rooms: []RoomEntry{
			{Name: "Room 1", Capacity: 11, BridgeAccount: "WebEx-1"},
			{Name: "Room 2", Capacity: 11, BridgeAccount: "WebEx-2"},
			{Name: "Room 3", Capacity: 11, BridgeAccount: "WebEx-3"},
			{Name: "Room 4", Capacity: 11, BridgeAccount: "WebEx-1"},
			{Name: "Room 5", Capacity: 11, BridgeAccount: "WebEx-2"},
			{Name: "Room 6", Capacity: 15, BridgeAccount: "WebEx-3"},
			{Name: "Room 7", Capacity: 15, BridgeAccount: "WebEx-4"},
			{Name: "Room 8", Capacity: 15, BridgeAccount: "WebEx-4"},
			{Name: "Room 9", Capacity: 21, BridgeAccount: "WebEx-2"},
			{Name: "Room 10", Capacity: 21, BridgeAccount: "WebEx-3"},
		},
		Equipment: []EquipmentEntry{
			{ID: "LAP-001", Name: "Laptop"},
			{ID: "LAP-002", Name: "Laptop"},
			{ID: "PRJ-001", Name: "Projector"},
			{ID: "MON-001", Name: "Monitor"},
			{ID: "CAM-001", Name: "Conference Camera"},
		},
	}
}

// LoadCatalog reads a YAML catalog from path. An empty path returns
// DefaultCatalog. A file that omits a section keeps the default for it.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("reading catalog: %w", err)
	}
	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, fmt.Errorf("parsing catalog: %w", err)
	}

	cat := DefaultCatalog()
	if len(file.Rooms) > 0 {
		cat.Rooms = file.Rooms
	}
	if len(file.Equipment) > 0 {
		cat.Equipment = file.Equipment
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// Validate rejects unnamed or duplicate entries and non-positive capacities.
func (c Catalog) Validate() error {
	var problems []string
	rooms := make(map[string]struct{}, len(c.Rooms))
	for i, r := range c.Rooms {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("rooms[%d]: name is required", i))
		case r.Capacity <= 0:
			problems = append(problems, fmt.Sprintf("rooms[%d] %s: capacity must be positive", i, name))
		}
		if _, dup := rooms[name]; dup && name != "" {
			problems = append(problems, fmt.Sprintf("rooms[%d]: duplicate room %s", i, name))
		}
		rooms[name] = struct{}{}
	}
	items := make(map[string]struct{}, len(c.Equipment))
	for i, e := range c.Equipment {
		id := strings.TrimSpace(e.ID)
		if id == "" || strings.TrimSpace(e.Name) == "" {
			problems = append(problems, fmt.Sprintf("equipment[%d]: id and name are required", i))
			continue
		}
		if _, dup := items[id]; dup {
			problems = append(problems, fmt.Sprintf("equipment[%d]: duplicate id %s", i, id))
		}
		items[id] = struct{}{}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid catalog: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RoomList converts the rooms for the room service.
func (c Catalog) RoomList() []application.Room {
	out := make([]application.Room, len(c.Rooms))
	for i, r := range c.Rooms {
		out[i] = application.Room{Name: strings.TrimSpace(r.Name), Capacity: r.Capacity, BridgeAccount: strings.TrimSpace(r.BridgeAccount)}
	}
	return out
}

// EquipmentList converts the equipment for seeding.
func (c Catalog) EquipmentList() []application.EquipmentItem {
	out := make([]application.EquipmentItem, len(c.Equipment))
	for i, e := range c.Equipment {
		out[i] = application.EquipmentItem{ID: strings.TrimSpace(e.ID), Name: strings.TrimSpace(e.Name)}
	}
	return out
}

// BridgeAccounts lists the distinct bridge accounts referenced by rooms.
func (c Catalog) BridgeAccounts() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range c.Rooms {
		account := strings.TrimSpace(r.BridgeAccount)
		if account == "" {
			continue
		}
		if _, ok := seen[account]; !ok {
			seen[account] = struct{}{}
			out = append(out, account)
		}
	}
	return out
}
