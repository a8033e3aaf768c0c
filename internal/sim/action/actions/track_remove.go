package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

// RefundPercent is the share of a piece's price returned on removal.
const RefundPercent = 50

// TrackRemove demolishes the piece whose first tile sits at Origin.
type TrackRemove struct {
	action.Base
	cats *catalogs.Catalogs

	Ride      park.RideID
	TrackType uint16
	Origin    park.CoordsXYZD
}

func NewTrackRemove(cats *catalogs.Catalogs, ride park.RideID, trackType uint16, origin park.CoordsXYZD) *TrackRemove {
	return &TrackRemove{cats: cats, Ride: ride, TrackType: trackType, Origin: origin}
}

func (a *TrackRemove) Kind() action.Kind { return action.KindTrackRemove }
func (a *TrackRemove) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked
}

func (a *TrackRemove) AcceptParameters(v action.Visitor) {
	v.VisitRide("ride", &a.Ride)
	v.VisitUint16("track_type", &a.TrackType)
	v.VisitCoordsXYZD("origin", &a.Origin)
}

func (a *TrackRemove) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

func (a *TrackRemove) matches(s span) func(park.Element) bool {
	return func(e park.Element) bool {
		return e.Kind == park.ElementTrack &&
			e.Ride == a.Ride &&
			e.TrackType == a.TrackType &&
			e.Direction == a.Origin.Direction &&
			e.Sequence == s.seq &&
			e.BaseZ == s.baseZ
	}
}

func (a *TrackRemove) plan(w park.View) ([]span, bool, action.Result) {
	const title = action.MsgCantRemoveTrack

	ride, ok := w.Ride(a.Ride)
	if !ok {
		return nil, false, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidRide)
	}
	if ride.Status == park.RideOpen {
		return nil, false, action.Fail(action.StatusPreconditionFailed, title, action.MsgRideMustBeClosed)
	}
	piece, ok := a.cats.Tracks.ByID[a.TrackType]
	if !ok {
		return nil, false, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidTrackType)
	}
	if r := checkOrigin(a.Origin, title); !r.OK() {
		return nil, false, r
	}
	spans := pieceSpans(piece, a.Origin)
	ghost := true
	for _, s := range spans {
		tile, ok := w.Tile(s.tile)
		if !ok {
			return nil, false, action.Fail(action.StatusPreconditionFailed, title, action.MsgOffEdgeOfMap)
		}
		match := a.matches(s)
		found := false
		for _, e := range tile.Elements {
			if !match(e) {
				continue
			}
			if e.Indestructible {
				return nil, false, action.Fail(action.StatusPreconditionFailed, title, action.MsgIndestructible)
			}
			found = true
			ghost = ghost && e.Ghost
		}
		if !found {
			return nil, false, action.Fail(action.StatusPreconditionFailed, title, action.MsgTrackNotFound)
		}
	}
	return spans, ghost, action.OK()
}

func (a *TrackRemove) result(spans []span, ghost bool) action.Result {
	r := action.OK()
	if !ghost {
		piece := a.cats.Tracks.ByID[a.TrackType]
		r.Cost = -piece.Price * park.Money(len(spans)) * RefundPercent / 100
	}
	r.Expenditure = park.ExpenditureRideConstruction
	r.Position = a.Origin.XYZ()
	return r
}

func (a *TrackRemove) Query(w park.View) action.Result {
	spans, ghost, r := a.plan(w)
	if !r.OK() {
		return r
	}
	return a.result(spans, ghost)
}

func (a *TrackRemove) Execute(w park.Mutator) action.Result {
	spans, ghost, r := a.plan(w)
	if !r.OK() {
		return r
	}
	for _, s := range spans {
		if w.RemoveElements(s.tile, a.matches(s)) == 0 {
			return inconsistent(action.MsgCantRemoveTrack, nil)
		}
	}
	res := a.result(spans, ghost)
	if !ghost {
		err := w.UpdateRide(a.Ride, func(rd *park.Ride) {
			if rd.TrackPieces > 0 {
				rd.TrackPieces--
			}
			rd.Value += res.Cost
		})
		if err != nil {
			return inconsistent(action.MsgCantRemoveTrack, err)
		}
	}
	return res
}
