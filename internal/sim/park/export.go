package park

import (
	"fmt"
	"sort"
)

// Export is a plain copy of the park used by snapshots.
type Export struct {
	Limits  Limits                   `json:"limits"`
	Rules   Rules                    `json:"rules"`
	Tiles   []Tile                   `json:"tiles"`
	Rides   []Ride                   `json:"rides"`
	Guests  []Guest                  `json:"guests"`
	Cash    Money                    `json:"cash"`
	Spent   map[Expenditure]Money    `json:"spent,omitempty"`
	Players map[PlayerID]PlayerStats `json:"players,omitempty"`
}

// Exporter is implemented by worlds that can be snapshotted.
type Exporter interface {
	Export() Export
}

func (s *State) Export() Export {
	out := Export{
		Limits:  s.limits,
		Rules:   s.rules,
		Tiles:   make([]Tile, len(s.tiles)),
		Cash:    s.cash,
		Spent:   map[Expenditure]Money{},
		Players: map[PlayerID]PlayerStats{},
	}
	for i := range s.tiles {
		out.Tiles[i] = s.tiles[i].clone()
	}
	for _, id := range s.RideIDs() {
		out.Rides = append(out.Rides, s.rides[id].clone())
	}
	for _, g := range s.guests {
		out.Guests = append(out.Guests, *g)
	}
	sort.Slice(out.Guests, func(i, j int) bool { return out.Guests[i].ID < out.Guests[j].ID })
	for k, v := range s.spent {
		out.Spent[k] = v
	}
	for k, v := range s.players {
		out.Players[k] = *v
	}
	return out
}

// Import rebuilds a park from an export.
func Import(e Export) (*State, error) {
	want := int(e.Limits.Width) * int(e.Limits.Height)
	if want <= 0 || len(e.Tiles) != want {
		return nil, fmt.Errorf("park import: %d tiles for %dx%d map", len(e.Tiles), e.Limits.Width, e.Limits.Height)
	}
	s := NewState(e.Limits, e.Rules, e.Cash)
	s.elements = 0
	for i := range e.Tiles {
		s.tiles[i] = e.Tiles[i].clone()
		s.elements += s.tiles[i].ElementCount()
	}
	for _, r := range e.Rides {
		cp := r.clone()
		s.rides[r.ID] = &cp
	}
	for _, g := range e.Guests {
		s.AddGuest(g)
	}
	for k, v := range e.Spent {
		s.spent[k] = v
	}
	for k, v := range e.Players {
		st := v
		s.players[k] = &st
	}
	return s, nil
}
