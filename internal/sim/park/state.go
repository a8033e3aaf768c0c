package park

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOutOfBounds = errors.New("tile out of bounds")
	ErrNoSuchRide  = errors.New("no such ride")
	ErrRideLimit   = errors.New("ride limit reached")
)

// View is the read-only slice of park state handed to action queries.
// Returned values are copies.
type View interface {
	Limits() Limits
	Rules() Rules
	Cash() Money
	InBounds(t TileXY) bool
	Tile(t TileXY) (Tile, bool)
	ElementCount() int
	Ride(id RideID) (Ride, bool)
	RideCount() int
	Guest(id GuestID) (Guest, bool)
}

// Mutator is handed to action execution.
type Mutator interface {
	View
	InsertElement(t TileXY, e Element) error
	RemoveElements(t TileXY, match func(Element) bool) int
	UpdateElements(t TileXY, match func(Element) bool, fn func(*Element)) int
	CreateRide(r Ride) (RideID, error)
	UpdateRide(id RideID, fn func(*Ride)) error
	SetGuestFlags(id GuestID, flags uint32) bool
	SetCash(m Money)
	Spend(cost Money, exp Expenditure)
}

// World is the full surface the dispatcher drives.
type World interface {
	Mutator
	SetRules(r Rules)
	RecordPlayerAction(p PlayerID, tick uint64, cost Money)
	Digest() string
}

// State is the in-memory park. It is not safe for concurrent use; callers
// serialize access (the dispatcher holds a read/write lock around it).
type State struct {
	limits Limits
	rules  Rules

	tiles    []Tile
	elements int

	rides   map[RideID]*Ride
	guests  map[GuestID]*Guest
	cash    Money
	spent   map[Expenditure]Money
	players map[PlayerID]*PlayerStats
}

var _ World = (*State)(nil)

// DefaultSurface is the surface height of freshly generated tiles.
const DefaultSurface int32 = 2 * HeightStep

func NewState(limits Limits, rules Rules, cash Money) *State {
	if limits.Width <= 0 || limits.Height <= 0 {
		d := DefaultLimits()
		limits.Width, limits.Height = d.Width, d.Height
	}
	s := &State{
		limits:  limits,
		rules:   rules,
		tiles:   make([]Tile, int(limits.Width)*int(limits.Height)),
		rides:   map[RideID]*Ride{},
		guests:  map[GuestID]*Guest{},
		cash:    cash,
		spent:   map[Expenditure]Money{},
		players: map[PlayerID]*PlayerStats{},
	}
	for i := range s.tiles {
		s.tiles[i].Surface = DefaultSurface
	}
	s.elements = len(s.tiles)
	return s
}

func (s *State) Limits() Limits { return s.limits }
func (s *State) Rules() Rules   { return s.rules }
func (s *State) Cash() Money    { return s.cash }

func (s *State) SetRules(r Rules) { s.rules = r }
func (s *State) SetCash(m Money)  { s.cash = m }

func (s *State) InBounds(t TileXY) bool {
	return t.X >= 0 && t.Y >= 0 && t.X < s.limits.Width && t.Y < s.limits.Height
}

func (s *State) idx(t TileXY) int { return int(t.Y)*int(s.limits.Width) + int(t.X) }

func (s *State) Tile(t TileXY) (Tile, bool) {
	if !s.InBounds(t) {
		return Tile{}, false
	}
	return s.tiles[s.idx(t)].clone(), true
}

// ElementCount is the number of elements on the whole map, surfaces included.
func (s *State) ElementCount() int { return s.elements }

func (s *State) InsertElement(t TileXY, e Element) error {
	if !s.InBounds(t) {
		return fmt.Errorf("insert %v: %w", t, ErrOutOfBounds)
	}
	tile := &s.tiles[s.idx(t)]
	tile.Elements = append(tile.Elements, e)
	// Keep the column ordered by base height so iteration is deterministic.
	sort.SliceStable(tile.Elements, func(i, j int) bool { return tile.Elements[i].BaseZ < tile.Elements[j].BaseZ })
	s.elements++
	return nil
}

func (s *State) RemoveElements(t TileXY, match func(Element) bool) int {
	if !s.InBounds(t) {
		return 0
	}
	tile := &s.tiles[s.idx(t)]
	kept := tile.Elements[:0]
	removed := 0
	for _, e := range tile.Elements {
		if match(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	tile.Elements = kept
	s.elements -= removed
	return removed
}

func (s *State) UpdateElements(t TileXY, match func(Element) bool, fn func(*Element)) int {
	if !s.InBounds(t) {
		return 0
	}
	tile := &s.tiles[s.idx(t)]
	n := 0
	for i := range tile.Elements {
		if match(tile.Elements[i]) {
			fn(&tile.Elements[i])
			n++
		}
	}
	return n
}

// SetSurface sets terrain for one tile. Used by park setup and snapshot import.
func (s *State) SetSurface(t TileXY, surface, water int32) error {
	if !s.InBounds(t) {
		return fmt.Errorf("surface %v: %w", t, ErrOutOfBounds)
	}
	tile := &s.tiles[s.idx(t)]
	tile.Surface = surface
	tile.Water = water
	return nil
}

// SetOwned marks every tile in the inclusive rectangle as park-owned (or not).
func (s *State) SetOwned(from, to TileXY, owned bool) {
	for y := from.Y; y <= to.Y; y++ {
		for x := from.X; x <= to.X; x++ {
			t := TileXY{X: x, Y: y}
			if s.InBounds(t) {
				s.tiles[s.idx(t)].Owned = owned
			}
		}
	}
}

func (s *State) Ride(id RideID) (Ride, bool) {
	r, ok := s.rides[id]
	if !ok {
		return Ride{}, false
	}
	return r.clone(), true
}

func (s *State) RideCount() int { return len(s.rides) }

// RideIDs returns the allocated ride ids in ascending order.
func (s *State) RideIDs() []RideID {
	ids := make([]RideID, 0, len(s.rides))
	for id := range s.rides {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CreateRide stores r under the lowest free id and returns that id.
func (s *State) CreateRide(r Ride) (RideID, error) {
	if s.limits.MaxRides > 0 && len(s.rides) >= s.limits.MaxRides {
		return RideNull, ErrRideLimit
	}
	var id RideID
	for ; id < RideNull; id++ {
		if _, used := s.rides[id]; !used {
			break
		}
	}
	if id == RideNull {
		return RideNull, ErrRideLimit
	}
	r.ID = id
	if len(r.Stations) == 0 && s.limits.MaxStations > 0 {
		r.Stations = make([]Station, s.limits.MaxStations)
	}
	cp := r.clone()
	s.rides[id] = &cp
	return id, nil
}

func (s *State) UpdateRide(id RideID, fn func(*Ride)) error {
	r, ok := s.rides[id]
	if !ok {
		return fmt.Errorf("ride %d: %w", id, ErrNoSuchRide)
	}
	fn(r)
	return nil
}

func (s *State) Guest(id GuestID) (Guest, bool) {
	g, ok := s.guests[id]
	if !ok {
		return Guest{}, false
	}
	return *g, true
}

// AddGuest admits a guest into the park.
func (s *State) AddGuest(g Guest) {
	cp := g
	s.guests[g.ID] = &cp
}

func (s *State) SetGuestFlags(id GuestID, flags uint32) bool {
	g, ok := s.guests[id]
	if !ok {
		return false
	}
	g.Flags = flags
	return true
}

// Spend deducts cost from cash (a negative cost is a refund) and books it
// under the expenditure category.
func (s *State) Spend(cost Money, exp Expenditure) {
	if s.rules.NoMoney {
		return
	}
	s.cash -= cost
	s.spent[exp] += cost
}

func (s *State) Spent(exp Expenditure) Money { return s.spent[exp] }

func (s *State) RecordPlayerAction(p PlayerID, tick uint64, cost Money) {
	st, ok := s.players[p]
	if !ok {
		st = &PlayerStats{}
		s.players[p] = st
	}
	st.MoneySpent += cost
	st.Actions++
	st.LastActTick = tick
}

func (s *State) PlayerStats(p PlayerID) (PlayerStats, bool) {
	st, ok := s.players[p]
	if !ok {
		return PlayerStats{}, false
	}
	return *st, true
}
