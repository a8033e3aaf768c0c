package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

const (
	entranceClearance            = 4 * park.HeightStep
	entrancePrice     park.Money = 400
)

// RideEntranceExitPlace builds the entrance or exit of one ride station,
// replacing the station's previous one.
type RideEntranceExitPlace struct {
	action.Base

	Loc       park.CoordsXY
	Direction uint8
	Ride      park.RideID
	Station   uint8
	IsExit    bool
}

func (a *RideEntranceExitPlace) Kind() action.Kind { return action.KindRideEntranceExitPlace }
func (a *RideEntranceExitPlace) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked
}

func (a *RideEntranceExitPlace) AcceptParameters(v action.Visitor) {
	v.VisitCoordsXY("loc", &a.Loc)
	v.VisitUint8("direction", &a.Direction)
	v.VisitRide("ride", &a.Ride)
	v.VisitUint8("station", &a.Station)
	v.VisitBool("is_exit", &a.IsExit)
}

func (a *RideEntranceExitPlace) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

func (a *RideEntranceExitPlace) title() action.MessageID {
	if a.IsExit {
		return action.MsgCantBuildExit
	}
	return action.MsgCantBuildEntrance
}

func (a *RideEntranceExitPlace) elementKind() park.ElementKind {
	if a.IsExit {
		return park.ElementExit
	}
	return park.ElementEntrance
}

// previous returns where the station's current entrance or exit stands.
func (a *RideEntranceExitPlace) previous(st park.Station) (park.CoordsXYZD, bool) {
	if a.IsExit {
		return st.Exit, st.HasExit
	}
	return st.Entrance, st.HasEntrance
}

func (a *RideEntranceExitPlace) isPrevious(e park.Element) bool {
	return e.Kind == a.elementKind() && e.Ride == a.Ride && e.Station == a.Station
}

func (a *RideEntranceExitPlace) plan(w park.View) (span, action.Result) {
	title := a.title()
	var s span

	ride, ok := w.Ride(a.Ride)
	if !ok {
		return s, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidRide)
	}
	if int(a.Station) >= len(ride.Stations) {
		return s, action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidStation).With("max", len(ride.Stations))
	}
	if ride.Status != park.RideClosed {
		return s, action.Fail(action.StatusPreconditionFailed, title, action.MsgRideMustBeClosed)
	}
	if r := checkOrigin(park.CoordsXYZD{X: a.Loc.X, Y: a.Loc.Y, Direction: a.Direction}, title); !r.OK() {
		return s, r
	}
	if prev, ok := a.previous(ride.Stations[a.Station]); ok {
		tile, _ := w.Tile(prev.XY().Tile())
		for _, e := range tile.Elements {
			if a.isPrevious(e) && e.Indestructible {
				return s, action.Fail(action.StatusPreconditionFailed, title, action.MsgIndestructible)
			}
		}
	}

	t := a.Loc.Tile()
	tile, ok := w.Tile(t)
	if !ok {
		return s, action.Fail(action.StatusPreconditionFailed, title, action.MsgOffEdgeOfMap)
	}
	if r := checkMapCapacity(w, []park.TileXY{t}, title); !r.OK() {
		return s, r
	}
	s = span{tile: t, baseZ: tile.Surface, clearZ: tile.Surface + entranceClearance}
	if _, r := checkSite(w, s, false, title, a.isPrevious); !r.OK() {
		return s, r
	}
	return s, action.OK()
}

func (a *RideEntranceExitPlace) result(s span) action.Result {
	r := action.OK()
	r.Cost = entrancePrice
	r.Expenditure = park.ExpenditureRideConstruction
	r.Position = park.CoordsXYZ{X: a.Loc.X, Y: a.Loc.Y, Z: s.baseZ}
	return r
}

func (a *RideEntranceExitPlace) Query(w park.View) action.Result {
	s, r := a.plan(w)
	if !r.OK() {
		return r
	}
	return a.result(s)
}

func (a *RideEntranceExitPlace) Execute(w park.Mutator) action.Result {
	s, r := a.plan(w)
	if !r.OK() {
		return r
	}
	ghost := a.IsGhost()
	ride, _ := w.Ride(a.Ride)
	if prev, ok := a.previous(ride.Stations[a.Station]); ok && !ghost {
		w.RemoveElements(prev.XY().Tile(), a.isPrevious)
	}
	err := w.InsertElement(s.tile, park.Element{
		Kind:      a.elementKind(),
		BaseZ:     s.baseZ,
		ClearZ:    s.clearZ,
		Direction: a.Direction,
		Ride:      a.Ride,
		Station:   a.Station,
		Ghost:     ghost,
	})
	if err != nil {
		return inconsistent(a.title(), err)
	}
	if ghost {
		return a.result(s)
	}
	pos := park.CoordsXYZD{X: a.Loc.X, Y: a.Loc.Y, Z: s.baseZ, Direction: a.Direction}
	err = w.UpdateRide(a.Ride, func(rd *park.Ride) {
		st := &rd.Stations[a.Station]
		if a.IsExit {
			st.Exit, st.HasExit = pos, true
		} else {
			st.Entrance, st.HasEntrance = pos, true
		}
	})
	if err != nil {
		return inconsistent(a.title(), err)
	}
	return a.result(s)
}
