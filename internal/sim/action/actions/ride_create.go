package actions

import (
	"fmt"
	"unicode/utf8"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

type RideCreateResult struct {
	Ride park.RideID
}

// RideCreate allocates a closed ride owned by the issuing player.
type RideCreate struct {
	action.Base
	cats *catalogs.Catalogs

	RideType        uint8
	Name            string
	PrimaryColour   uint8
	SecondaryColour uint8
}

func NewRideCreate(cats *catalogs.Catalogs, rideType uint8, name string) *RideCreate {
	return &RideCreate{cats: cats, RideType: rideType, Name: name}
}

func (a *RideCreate) Kind() action.Kind { return action.KindRideCreate }
func (a *RideCreate) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked
}

func (a *RideCreate) AcceptParameters(v action.Visitor) {
	v.VisitUint8("ride_type", &a.RideType)
	v.VisitString("name", &a.Name)
	v.VisitUint8("primary_colour", &a.PrimaryColour)
	v.VisitUint8("secondary_colour", &a.SecondaryColour)
}

func (a *RideCreate) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

func (a *RideCreate) Query(w park.View) action.Result {
	const title = action.MsgCantCreateRide
	if _, ok := a.cats.Rides.ByID[a.RideType]; !ok {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidRideType)
	}
	if !utf8.ValidString(a.Name) || len(a.Name) > encoding.MaxStringLen {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidName)
	}
	lim := w.Limits()
	if n := utf8.RuneCountInString(a.Name); lim.MaxRideNameLength > 0 && n > lim.MaxRideNameLength {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidName).With("max", lim.MaxRideNameLength)
	}
	if lim.MaxRides > 0 && w.RideCount() >= lim.MaxRides {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgRideLimitReached).With("limit", lim.MaxRides)
	}
	r := action.OK()
	r.Expenditure = park.ExpenditureRideConstruction
	return r
}

func (a *RideCreate) Execute(w park.Mutator) action.Result {
	if r := a.Query(w); !r.OK() {
		return r
	}
	rt := a.cats.Rides.ByID[a.RideType]
	id, err := w.CreateRide(park.Ride{
		Type:            a.RideType,
		Name:            a.Name,
		Owner:           a.Player(),
		Status:          park.RideClosed,
		PrimaryColour:   a.PrimaryColour,
		SecondaryColour: a.SecondaryColour,
	})
	if err != nil {
		return inconsistent(action.MsgCantCreateRide, err)
	}
	if a.Name == "" {
		name := fmt.Sprintf("%s %d", rt.Name, int(id)+1)
		if err := w.UpdateRide(id, func(rd *park.Ride) { rd.Name = name }); err != nil {
			return inconsistent(action.MsgCantCreateRide, err)
		}
	}
	r := action.OK()
	r.Expenditure = park.ExpenditureRideConstruction
	r.Payload = RideCreateResult{Ride: id}
	return r
}
