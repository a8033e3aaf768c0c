package actions

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

func TestRegistry_RoundTripEveryKind(t *testing.T) {
	reg, err := NewRegistry(loadCats(t))
	require.NoError(t, err)
	f := fuzz.New().NilChance(0).NumElements(0, 8)

	for _, k := range action.SupportedKinds() {
		for i := 0; i < 50; i++ {
			a, err := reg.New(k)
			require.NoError(t, err)
			f.Fuzz(a)
			var player uint32
			var cmd uint32
			f.Fuzz(&player)
			f.Fuzz(&cmd)
			a.SetPlayer(park.PlayerID(player))
			a.SetCommand(action.CommandFlags(cmd))

			b, err := action.Encode(a)
			require.NoError(t, err, "%s", action.Describe(a))
			back, err := reg.Decode(k, b)
			require.NoError(t, err, "%s", action.Describe(a))
			if !reflect.DeepEqual(a, back) {
				t.Fatalf("%s: round trip mismatch\n got %s\nwant %s", k, action.Describe(back), action.Describe(a))
			}
			again, err := action.Encode(back)
			require.NoError(t, err)
			require.Equal(t, b, again)
		}
	}
}

func TestRegistry_UnencodableStringsNeverReachTheWire(t *testing.T) {
	cats := loadCats(t)
	reg, err := NewRegistry(cats)
	require.NoError(t, err)
	w := newPark(t, park.Rules{})

	for name, bad := range map[string]string{
		"invalid utf-8": "Coaster\xff",
		"lone byte":     "\x80",
		"too long":      strings.Repeat("a", encoding.MaxStringLen+1),
	} {
		a := NewRideCreate(cats, 1, bad)
		r := a.Query(w)
		require.Equal(t, action.StatusPreconditionFailed, r.Status, name)
		require.Equal(t, action.MsgInvalidName, r.Message, name)

		_, err := action.Encode(a)
		require.ErrorIs(t, err, action.ErrEncode, name)
		require.ErrorIs(t, err, encoding.ErrMalformed, name)
		_, err = reg.Clone(a)
		require.Error(t, err, name)
	}

	// Multi-byte names at the length limit still round trip.
	a := NewRideCreate(cats, 1, strings.Repeat("é", encoding.MaxStringLen/2))
	b, err := action.Encode(a)
	require.NoError(t, err)
	back, err := reg.Decode(action.KindRideCreate, b)
	require.NoError(t, err)
	require.Equal(t, a.Name, back.(*RideCreate).Name)
}

func TestRegistry_DecodeFailures(t *testing.T) {
	cats := loadCats(t)
	reg, err := NewRegistry(cats)
	require.NoError(t, err)

	_, err = reg.Decode(action.Kind(999), nil)
	require.ErrorIs(t, err, action.ErrUnknownKind)

	a := NewTrackPlace(cats, 3, pieceFlat, at(1, 2, 16, 1))
	b, err := action.Encode(a)
	require.NoError(t, err)
	for cut := 0; cut < len(b); cut++ {
		_, err := reg.Decode(action.KindTrackPlace, b[:cut])
		if !errors.Is(err, encoding.ErrTruncated) || !errors.Is(err, action.ErrDecode) {
			t.Fatalf("cut=%d: expected truncation, got %v", cut, err)
		}
	}
	_, err = reg.Decode(action.KindTrackPlace, append(b, 0))
	require.ErrorIs(t, err, encoding.ErrMalformed)
}

func TestRegistry_Validation(t *testing.T) {
	_, err := action.NewRegistry(map[action.Kind]action.Factory{
		action.KindGuestSetFlags: func() action.Action { return &GuestSetFlags{} },
	})
	require.Error(t, err)

	_, err = action.NewRegistry(map[action.Kind]action.Factory{
		action.KindTrackPlace:            func() action.Action { return &GuestSetFlags{} },
		action.KindTrackRemove:           func() action.Action { return &TrackRemove{} },
		action.KindRideCreate:            func() action.Action { return &RideCreate{} },
		action.KindRideEntranceExitPlace: func() action.Action { return &RideEntranceExitPlace{} },
		action.KindRideSetColourScheme:   func() action.Action { return &RideSetColourScheme{} },
		action.KindGuestSetFlags:         func() action.Action { return &GuestSetFlags{} },
		action.KindParkSetCash:           func() action.Action { return &ParkSetCash{} },
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "builds guest_set_flags")
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	cats := loadCats(t)
	reg, err := NewRegistry(cats)
	require.NoError(t, err)
	a := NewTrackPlace(cats, 3, pieceFlat, at(1, 2, 16, 1))
	a.SetPlayer(9)

	c, err := reg.Clone(a)
	require.NoError(t, err)
	cp := c.(*TrackPlace)
	require.Equal(t, park.PlayerID(9), cp.Player())
	cp.Ride = 4
	require.Equal(t, park.RideID(3), a.Ride)
}

func TestDescribe(t *testing.T) {
	a := &GuestSetFlags{Guest: 12, Value: GuestTracking}
	require.Equal(t, "guest_set_flags(guest=12, flags=0x8)", action.Describe(a))
}

func TestTrackRemove_Refund(t *testing.T) {
	cats := loadCats(t)
	s := newPark(t, park.Rules{})
	ride := mustCreateRide(t, s, cats, 1, rideTypeWooden)
	mustRun(t, s, NewTrackPlace(cats, ride, pieceQuarter, at(5, 5, 16, 0)))
	before := s.ElementCount()

	r := mustRun(t, s, NewTrackRemove(cats, ride, pieceQuarter, at(5, 5, 16, 0)))
	require.Equal(t, park.Money(-1350), r.Cost)
	require.Equal(t, before-3, s.ElementCount())
	rd, _ := s.Ride(ride)
	require.Zero(t, rd.TrackPieces)

	again := NewTrackRemove(cats, ride, pieceQuarter, at(5, 5, 16, 0)).Query(s)
	require.Equal(t, action.MsgTrackNotFound, again.Message)
}

func TestTrackRemove_Indestructible(t *testing.T) {
	cats := loadCats(t)
	s := newPark(t, park.Rules{})
	ride := mustCreateRide(t, s, cats, 1, rideTypeWooden)
	mustRun(t, s, NewTrackPlace(cats, ride, pieceFlat, at(2, 2, 16, 0)))
	s.UpdateElements(park.TileXY{X: 2, Y: 2}, func(park.Element) bool { return true }, func(e *park.Element) { e.Indestructible = true })

	r := NewTrackRemove(cats, ride, pieceFlat, at(2, 2, 16, 0)).Query(s)
	require.Equal(t, action.MsgIndestructible, r.Message)
}

func TestRideCreate(t *testing.T) {
	cats := loadCats(t)
	s := newPark(t, park.Rules{})

	a := NewRideCreate(cats, rideTypeWooden, "")
	a.SetPlayer(42)
	r := mustRun(t, s, a)
	p, ok := action.PayloadAs[RideCreateResult](r)
	require.True(t, ok)
	rd, ok := s.Ride(p.Ride)
	require.True(t, ok)
	require.Equal(t, park.PlayerID(42), rd.Owner)
	require.Equal(t, "wooden_coaster 1", rd.Name)
	require.Equal(t, park.RideClosed, rd.Status)

	_, ok = action.PayloadAs[TrackPlaceResult](r)
	require.False(t, ok, "payload type mismatch must not convert")

	bad := NewRideCreate(cats, 200, "x").Query(s)
	require.Equal(t, action.MsgInvalidRideType, bad.Message)
	long := NewRideCreate(cats, rideTypeWooden, "a name that is definitely longer than the limit").Query(s)
	require.Equal(t, action.MsgInvalidName, long.Message)
}

func TestRideCreate_Limit(t *testing.T) {
	cats := loadCats(t)
	lim := park.DefaultLimits()
	lim.MaxRides = 1
	s := park.NewState(lim, park.Rules{}, 0)
	mustCreateRide(t, s, cats, 1, rideTypeWooden)

	r := NewRideCreate(cats, rideTypeWooden, "").Query(s)
	require.Equal(t, action.MsgRideLimitReached, r.Message)
	require.Equal(t, "1", r.Args["limit"])
}

func TestRideEntranceExitPlace(t *testing.T) {
	cats := loadCats(t)
	s := newPark(t, park.Rules{})
	ride := mustCreateRide(t, s, cats, 1, rideTypeWooden)

	place := func(tx, ty int32, exit bool) action.Result {
		a := &RideEntranceExitPlace{Loc: park.CoordsXY{X: tx * park.TileSize, Y: ty * park.TileSize}, Direction: 1, Ride: ride, Station: 0, IsExit: exit}
		if r := a.Query(s); !r.OK() {
			return r
		}
		return a.Execute(s)
	}

	require.True(t, place(3, 3, false).OK())
	require.True(t, place(4, 3, true).OK())
	rd, _ := s.Ride(ride)
	require.True(t, rd.Stations[0].HasEntrance)
	require.True(t, rd.Stations[0].HasExit)
	require.Equal(t, int32(3*park.TileSize), rd.Stations[0].Entrance.X)

	// Moving the entrance removes the old one.
	require.True(t, place(6, 6, false).OK())
	old, _ := s.Tile(park.TileXY{X: 3, Y: 3})
	require.Empty(t, old.Elements)
	// Rebuilding in place is not blocked by the element it replaces.
	require.True(t, place(6, 6, false).OK())

	bad := &RideEntranceExitPlace{Ride: ride, Station: 9}
	require.Equal(t, action.MsgInvalidStation, bad.Query(s).Message)

	_ = s.UpdateRide(ride, func(rd *park.Ride) { rd.Status = park.RideTesting })
	require.Equal(t, action.MsgRideMustBeClosed, place(8, 8, true).Message)
}

func TestRideEntranceExitPlace_Underwater(t *testing.T) {
	cats := loadCats(t)
	s := newPark(t, park.Rules{})
	ride := mustCreateRide(t, s, cats, 1, rideTypeWooden)
	require.NoError(t, s.SetSurface(park.TileXY{X: 2, Y: 2}, 8, 24))

	a := &RideEntranceExitPlace{Loc: park.CoordsXY{X: 64, Y: 64}, Ride: ride}
	require.Equal(t, action.MsgUnderwater, a.Query(s).Message)
}

func TestRideSetColourScheme(t *testing.T) {
	cats := loadCats(t)
	s := newPark(t, park.Rules{})
	ride := mustCreateRide(t, s, cats, 1, rideTypeWooden)
	mustRun(t, s, NewTrackPlace(cats, ride, pieceQuarter, at(5, 5, 16, 0)))

	a := NewRideSetColourScheme(cats, at(5, 5, 16, 0), pieceQuarter, 2)
	require.Equal(t, []park.RideID{ride}, action.ReferencedRides(a, s))
	mustRun(t, s, a)
	for _, tl := range []park.TileXY{{X: 5, Y: 5}, {X: 5, Y: 4}, {X: 4, Y: 4}} {
		tile, _ := s.Tile(tl)
		require.Equal(t, uint8(2), tile.Elements[0].ColourScheme, "tile %+v", tl)
	}

	require.Equal(t, action.MsgInvalidColour, NewRideSetColourScheme(cats, at(5, 5, 16, 0), pieceQuarter, 4).Query(s).Message)
	require.Equal(t, action.MsgTrackNotFound, NewRideSetColourScheme(cats, at(5, 5, 24, 0), pieceQuarter, 1).Query(s).Message)
}

func TestGuestSetFlags(t *testing.T) {
	s := newPark(t, park.Rules{})
	s.AddGuest(park.Guest{ID: 5})

	mustRun(t, s, &GuestSetFlags{Guest: 5, Value: GuestLeavingPark | GuestLitter})
	g, _ := s.Guest(5)
	require.Equal(t, GuestLeavingPark|GuestLitter, g.Flags)

	r := (&GuestSetFlags{Guest: 6}).Query(s)
	require.Equal(t, action.StatusPreconditionFailed, r.Status)
	require.Equal(t, action.MsgGuestNotFound, r.Message)
}

func TestParkSetCash(t *testing.T) {
	s := newPark(t, park.Rules{Sandbox: true})
	mustRun(t, s, &ParkSetCash{Amount: 5000})
	require.Equal(t, park.Money(5000), s.Cash())

	require.Equal(t, action.MsgInvalidAmount, (&ParkSetCash{Amount: -1}).Query(s).Message)
	require.Equal(t, action.MsgInvalidAmount, (&ParkSetCash{Amount: park.DefaultLimits().MaxCash + 1}).Query(s).Message)
}
