package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

// Placement flag bits carried in TrackPlace.PlaceFlags.
const (
	PlaceLiftHill uint32 = 1 << 0
	PlaceInverted uint32 = 1 << 1
)

// TrackPlaceResult is the payload of a successful TrackPlace.
type TrackPlaceResult struct {
	GroundFlags uint8
}

type TrackPlace struct {
	action.Base
	cats *catalogs.Catalogs

	Ride            park.RideID
	TrackType       uint16
	Origin          park.CoordsXYZD
	BrakeSpeed      uint8
	Colour          uint8
	SeatRotation    uint8
	PlaceFlags      uint32
	FromTrackDesign bool
}

func NewTrackPlace(cats *catalogs.Catalogs, ride park.RideID, trackType uint16, origin park.CoordsXYZD) *TrackPlace {
	return &TrackPlace{cats: cats, Ride: ride, TrackType: trackType, Origin: origin}
}

func (a *TrackPlace) Kind() action.Kind { return action.KindTrackPlace }
func (a *TrackPlace) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked
}

func (a *TrackPlace) AcceptParameters(v action.Visitor) {
	v.VisitRide("ride", &a.Ride)
	v.VisitUint16("track_type", &a.TrackType)
	v.VisitCoordsXYZD("origin", &a.Origin)
	v.VisitUint8("brake_speed", &a.BrakeSpeed)
	v.VisitUint8("colour", &a.Colour)
	v.VisitUint8("seat_rotation", &a.SeatRotation)
	v.VisitUint32("place_flags", &a.PlaceFlags)
	v.VisitBool("from_track_design", &a.FromTrackDesign)
}

func (a *TrackPlace) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

type trackPlan struct {
	ride   park.Ride
	piece  catalogs.TrackPieceDef
	spans  []span
	ground uint8
	cost   park.Money
}

func (a *TrackPlace) plan(w park.View) (trackPlan, action.Result) {
	const title = action.MsgCantBuildTrack
	var p trackPlan

	ride, ok := w.Ride(a.Ride)
	if !ok {
		return p, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidRide)
	}
	rt, ok := a.cats.Rides.ByID[ride.Type]
	if !ok {
		return p, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidRideType)
	}
	piece, ok := a.cats.Tracks.ByID[a.TrackType]
	if !ok || !rt.Allows(a.TrackType) {
		return p, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidTrackType)
	}
	if ride.Status == park.RideOpen {
		return p, action.Fail(action.StatusPreconditionFailed, title, action.MsgRideMustBeClosed)
	}
	if r := checkOrigin(a.Origin, title); !r.OK() {
		return p, r
	}

	spans := pieceSpans(piece, a.Origin)
	for _, s := range spans {
		if !w.InBounds(s.tile) {
			return p, action.Fail(action.StatusPreconditionFailed, title, action.MsgOffEdgeOfMap)
		}
	}
	if r := checkMapCapacity(w, spanTiles(spans), title); !r.OK() {
		return p, r
	}

	var ground uint8
	var supports park.Money
	for _, s := range spans {
		g, r := checkSite(w, s, rt.AllowUnderwater, title, nil)
		if !r.OK() {
			return p, r
		}
		ground |= g
		if g&GroundAbove != 0 {
			tile, _ := w.Tile(s.tile)
			supports += rt.SupportCost * park.Money((s.baseZ-tile.Surface)/park.HeightStep)
		}
	}
	if ground&GroundAbove != 0 && ground&GroundUnderneath != 0 {
		return p, action.Fail(action.StatusPreconditionFailed, title, action.MsgPartlyUnderground)
	}

	p = trackPlan{
		ride:   ride,
		piece:  piece,
		spans:  spans,
		ground: ground,
		cost:   piece.Price*park.Money(len(spans)) + supports,
	}
	return p, action.OK()
}

func (a *TrackPlace) result(p trackPlan) action.Result {
	r := action.OK()
	r.Cost = p.cost
	r.Expenditure = park.ExpenditureRideConstruction
	r.Position = a.Origin.XYZ()
	r.Payload = TrackPlaceResult{GroundFlags: p.ground}
	return r
}

func (a *TrackPlace) Query(w park.View) action.Result {
	p, r := a.plan(w)
	if !r.OK() {
		return r
	}
	return a.result(p)
}

func (a *TrackPlace) Execute(w park.Mutator) action.Result {
	// Re-plan against the state we are about to mutate; it may have moved
	// since the query.
	p, r := a.plan(w)
	if !r.OK() {
		return r
	}
	ghost := a.IsGhost()
	for _, s := range p.spans {
		err := w.InsertElement(s.tile, park.Element{
			Kind:         park.ElementTrack,
			BaseZ:        s.baseZ,
			ClearZ:       s.clearZ,
			Direction:    a.Origin.Direction,
			Ride:         a.Ride,
			TrackType:    a.TrackType,
			Sequence:     s.seq,
			ColourScheme: a.Colour,
			BrakeSpeed:   a.BrakeSpeed,
			SeatRotation: a.SeatRotation,
			Ghost:        ghost,
		})
		if err != nil {
			return inconsistent(action.MsgCantBuildTrack, err)
		}
	}
	if !ghost {
		err := w.UpdateRide(a.Ride, func(rd *park.Ride) {
			rd.TrackPieces++
			rd.Value += p.cost
		})
		if err != nil {
			return inconsistent(action.MsgCantBuildTrack, err)
		}
	}
	return a.result(p)
}
