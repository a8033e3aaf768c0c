package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

// MaxColourSchemes is the number of colour schemes a ride can define.
const MaxColourSchemes = 4

// RideSetColourScheme recolours the track piece found at Loc.
type RideSetColourScheme struct {
	action.Base
	cats *catalogs.Catalogs

	Loc       park.CoordsXYZD
	TrackType uint16
	Scheme    uint8
}

func NewRideSetColourScheme(cats *catalogs.Catalogs, loc park.CoordsXYZD, trackType uint16, scheme uint8) *RideSetColourScheme {
	return &RideSetColourScheme{cats: cats, Loc: loc, TrackType: trackType, Scheme: scheme}
}

func (a *RideSetColourScheme) Kind() action.Kind { return action.KindRideSetColourScheme }
func (a *RideSetColourScheme) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked | action.FlagAllowWhilePaused
}

func (a *RideSetColourScheme) AcceptParameters(v action.Visitor) {
	v.VisitCoordsXYZD("loc", &a.Loc)
	v.VisitUint16("track_type", &a.TrackType)
	v.VisitUint8("scheme", &a.Scheme)
}

func (a *RideSetColourScheme) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

// origin finds the first-tile element of the piece at Loc.
func (a *RideSetColourScheme) origin(w park.View) (park.Element, bool) {
	tile, ok := w.Tile(a.Loc.XY().Tile())
	if !ok {
		return park.Element{}, false
	}
	for _, e := range tile.Elements {
		if e.Kind == park.ElementTrack && e.TrackType == a.TrackType && e.BaseZ == a.Loc.Z &&
			e.Direction == a.Loc.Direction && e.Sequence == 0 && !e.Ghost {
			return e, true
		}
	}
	return park.Element{}, false
}

// ResolveRides names the ride owning the targeted piece so permission checks
// see it even though it is not a parameter.
func (a *RideSetColourScheme) ResolveRides(w park.View) []park.RideID {
	if e, ok := a.origin(w); ok {
		return []park.RideID{e.Ride}
	}
	return nil
}

func (a *RideSetColourScheme) plan(w park.View) (park.Element, []span, action.Result) {
	const title = action.MsgCantChangeColours
	if a.Scheme >= MaxColourSchemes {
		return park.Element{}, nil, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidColour).With("max", MaxColourSchemes-1)
	}
	if !w.InBounds(a.Loc.XY().Tile()) {
		return park.Element{}, nil, action.Fail(action.StatusPreconditionFailed, title, action.MsgOffEdgeOfMap)
	}
	piece, ok := a.cats.Tracks.ByID[a.TrackType]
	if !ok {
		return park.Element{}, nil, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidTrackType)
	}
	e, ok := a.origin(w)
	if !ok {
		return park.Element{}, nil, action.Fail(action.StatusPreconditionFailed, title, action.MsgTrackNotFound)
	}
	return e, pieceSpans(piece, a.Loc), action.OK()
}

func (a *RideSetColourScheme) Query(w park.View) action.Result {
	_, _, r := a.plan(w)
	if !r.OK() {
		return r
	}
	r.Position = a.Loc.XYZ()
	return r
}

func (a *RideSetColourScheme) Execute(w park.Mutator) action.Result {
	origin, spans, r := a.plan(w)
	if !r.OK() {
		return r
	}
	for _, s := range spans {
		seq := s.seq
		w.UpdateElements(s.tile, func(e park.Element) bool {
			return e.Kind == park.ElementTrack && e.Ride == origin.Ride && e.TrackType == a.TrackType &&
				e.Direction == a.Loc.Direction && e.Sequence == seq && e.BaseZ == s.baseZ
		}, func(e *park.Element) {
			e.ColourScheme = a.Scheme
		})
	}
	r.Position = a.Loc.XYZ()
	return r
}
