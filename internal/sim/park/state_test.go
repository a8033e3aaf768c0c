package park

import "testing"

func TestCreateRideAllocatesLowestFreeID(t *testing.T) {
	s := NewState(DefaultLimits(), Rules{}, 1000)
	a, err := s.CreateRide(Ride{Name: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _ := s.CreateRide(Ride{Name: "b"})
	if a != 0 || b != 1 {
		t.Fatalf("ids: got %d,%d want 0,1", a, b)
	}
	delete(s.rides, a)
	c, _ := s.CreateRide(Ride{Name: "c"})
	if c != 0 {
		t.Fatalf("expected reuse of id 0, got %d", c)
	}
	r, ok := s.Ride(c)
	if !ok || len(r.Stations) != DefaultLimits().MaxStations {
		t.Fatalf("stations not allocated: %+v", r)
	}
}

func TestElementCountTracksInsertAndRemove(t *testing.T) {
	lim := DefaultLimits()
	lim.Width, lim.Height = 4, 4
	s := NewState(lim, Rules{}, 0)
	if got := s.ElementCount(); got != 16 {
		t.Fatalf("surfaces: got %d want 16", got)
	}
	tile := TileXY{X: 1, Y: 2}
	for i := 0; i < 3; i++ {
		if err := s.InsertElement(tile, Element{Kind: ElementTrack, BaseZ: int32(i) * 8, ClearZ: int32(i)*8 + 8}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if got := s.ElementCount(); got != 19 {
		t.Fatalf("after insert: got %d want 19", got)
	}
	n := s.RemoveElements(tile, func(e Element) bool { return e.BaseZ >= 8 })
	if n != 2 || s.ElementCount() != 17 {
		t.Fatalf("remove: n=%d count=%d", n, s.ElementCount())
	}
	if err := s.InsertElement(TileXY{X: 9, Y: 0}, Element{}); err == nil {
		t.Fatalf("expected out of bounds error")
	}
}

func TestTileReturnsCopy(t *testing.T) {
	s := NewState(DefaultLimits(), Rules{}, 0)
	_ = s.InsertElement(TileXY{}, Element{Kind: ElementTrack, BaseZ: 16, ClearZ: 32})
	tile, _ := s.Tile(TileXY{})
	tile.Elements[0].BaseZ = 99
	again, _ := s.Tile(TileXY{})
	if again.Elements[0].BaseZ != 16 {
		t.Fatalf("view mutated state")
	}
}

func TestDigestStableAcrossExportImport(t *testing.T) {
	s := NewState(DefaultLimits(), Rules{Sandbox: true}, 5000)
	s.SetOwned(TileXY{}, TileXY{X: 3, Y: 3}, true)
	id, _ := s.CreateRide(Ride{Name: "wooden", Owner: 7})
	_ = s.InsertElement(TileXY{X: 1, Y: 1}, Element{Kind: ElementTrack, Ride: id, BaseZ: 16, ClearZ: 32})
	s.AddGuest(Guest{ID: 3, Flags: 4})
	s.Spend(250, ExpenditureRideConstruction)

	cp, err := Import(s.Export())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if s.Digest() != cp.Digest() {
		t.Fatalf("digest mismatch after import")
	}
	if cp.ElementCount() != s.ElementCount() {
		t.Fatalf("element count: %d vs %d", cp.ElementCount(), s.ElementCount())
	}
	cp.Spend(1, ExpenditureParkCommands)
	if s.Digest() == cp.Digest() {
		t.Fatalf("digest did not change after spend")
	}
}

func TestSpendSkippedInNoMoneyPark(t *testing.T) {
	s := NewState(DefaultLimits(), Rules{NoMoney: true}, 100)
	s.Spend(50, ExpenditureLandscaping)
	if s.Cash() != 100 {
		t.Fatalf("cash changed in no-money park: %v", s.Cash())
	}
}

func TestTileRotate(t *testing.T) {
	off := TileXY{X: 1, Y: 0}
	want := []TileXY{{X: 1, Y: 0}, {X: 0, Y: -1}, {X: -1, Y: 0}, {X: 0, Y: 1}}
	for d := uint8(0); d < 4; d++ {
		if got := off.Rotate(d); got != want[d] {
			t.Fatalf("dir %d: got %+v want %+v", d, got, want[d])
		}
	}
	if got := (CoordsXY{X: -1, Y: 33}).Tile(); got != (TileXY{X: -1, Y: 1}) {
		t.Fatalf("negative tile: %+v", got)
	}
}
