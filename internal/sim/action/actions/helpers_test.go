package actions

import (
	"testing"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/park"
)

const (
	pieceFlat      uint16 = 0
	pieceQuarter   uint16 = 16
	rideTypeWooden uint8  = 1
	rideTypeFlume  uint8  = 2
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

// newPark returns a 16x16 park whose land is entirely owned.
func newPark(t *testing.T, rules park.Rules) *park.State {
	t.Helper()
	lim := park.DefaultLimits()
	lim.Width, lim.Height = 16, 16
	s := park.NewState(lim, rules, 100_000)
	s.SetOwned(park.TileXY{}, park.TileXY{X: 15, Y: 15}, true)
	return s
}

func mustRun(t *testing.T, w park.Mutator, a action.Action) action.Result {
	t.Helper()
	if r := a.Query(w); !r.OK() {
		t.Fatalf("%s query: %s", action.Describe(a), r)
	}
	r := a.Execute(w)
	if !r.OK() {
		t.Fatalf("%s execute: %s", action.Describe(a), r)
	}
	return r
}

func mustCreateRide(t *testing.T, w park.Mutator, cats *catalogs.Catalogs, owner park.PlayerID, rideType uint8) park.RideID {
	t.Helper()
	a := NewRideCreate(cats, rideType, "")
	a.SetPlayer(owner)
	r := mustRun(t, w, a)
	p, ok := action.PayloadAs[RideCreateResult](r)
	if !ok {
		t.Fatalf("ride create payload missing: %+v", r)
	}
	return p.Ride
}

func at(tx, ty int32, z int32, dir uint8) park.CoordsXYZD {
	return park.CoordsXYZD{X: tx * park.TileSize, Y: ty * park.TileSize, Z: z, Direction: dir}
}

// fillTile stacks inert elements high above the build height until the tile
// holds n elements, surface included.
func fillTile(t *testing.T, s *park.State, tile park.TileXY, n int) {
	t.Helper()
	cur, _ := s.Tile(tile)
	for i := cur.ElementCount(); i < n; i++ {
		z := int32(1000 + i*park.HeightStep)
		if err := s.InsertElement(tile, park.Element{Kind: park.ElementTrack, Ride: park.RideNull, BaseZ: z, ClearZ: z + park.HeightStep}); err != nil {
			t.Fatalf("fill: %v", err)
		}
	}
}
