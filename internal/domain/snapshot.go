package domain

import (
	"encoding/json"
	"fmt"
)

// Type group names that the translator dispatches on. Groups with any other
// name are carried through decoding untouched and skipped during translation.
const (
	GroupResearch = "research"
	GroupFluids   = "fluids"
	GroupItems    = "items"
)

// Snapshot is one point-in-time JSON document written by the Factorio mod.
// It is read fresh on every scrape and discarded afterwards.
type Snapshot struct {
	Game      *Game              `json:"game"`
	Players   map[string]Player  `json:"players"`
	Forces    map[string]Force   `json:"forces"`
	Pollution map[string]float64 `json:"pollution"`
	Surfaces  map[string]Surface `json:"surfaces"`
}

// Game holds the global game state.
type Game struct {
	Time Clock `json:"time"`
}

// Clock holds the in-game time counters.
type Clock struct {
	Tick int64 `json:"tick"`
}

// Player is the per-player state keyed by username in Snapshot.Players.
type Player struct {
	Connected bool `json:"connected"`
}

// Force maps a type group name to its raw payload. The payload shape depends
// on the group, so decoding is deferred to the typed accessors below.
type Force map[string]json.RawMessage

// Research is the payload of a force's "research" group.
type Research struct {
	Progress float64 `json:"progress"`
}

// PrototypeFlow is the per-prototype payload inside the "fluids" and "items"
// groups.
type PrototypeFlow struct {
	Production  float64 `json:"production"`
	Consumption float64 `json:"consumption"`
}

// Surface is the per-surface state keyed by surface name in Snapshot.Surfaces.
type Surface struct {
	Pollution   float64          `json:"pollution"`
	TicksPerDay float64          `json:"ticks_per_day"`
	Entities    map[string]int64 `json:"entities"`
}

// Parse decodes a snapshot document and verifies its required top-level keys.
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	for _, key := range []struct {
		name    string
		present bool
	}{
		{"game", s.Game != nil},
		{"players", s.Players != nil},
		{"forces", s.Forces != nil},
		{"pollution", s.Pollution != nil},
		{"surfaces", s.Surfaces != nil},
	} {
		if !key.present {
			return fmt.Errorf("snapshot missing required key %q", key.name)
		}
	}
	return nil
}

// Research returns the decoded research payload, or ok=false when the force
// has no research group.
func (f Force) Research() (Research, bool, error) {
	raw, ok := f[GroupResearch]
	if !ok {
		return Research{}, false, nil
	}
	var r Research
	if err := json.Unmarshal(raw, &r); err != nil {
		return Research{}, false, fmt.Errorf("decode research group: %w", err)
	}
	return r, true, nil
}

// Prototypes decodes a prototype flow group such as "fluids" or "items".
// An absent group yields an empty map.
func (f Force) Prototypes(group string) (map[string]PrototypeFlow, error) {
	raw, ok := f[group]
	if !ok {
		return nil, nil
	}
	flows := make(map[string]PrototypeFlow)
	if err := json.Unmarshal(raw, &flows); err != nil {
		return nil, fmt.Errorf("decode %s group: %w", group, err)
	}
	return flows, nil
}
