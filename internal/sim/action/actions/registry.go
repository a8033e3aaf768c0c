package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
)

// NewRegistry builds the closed kind table. Catalog-dependent variants share
// cats, which is never serialized.
func NewRegistry(cats *catalogs.Catalogs) (*action.Registry, error) {
	return action.NewRegistry(map[action.Kind]action.Factory{
		action.KindTrackPlace:            func() action.Action { return &TrackPlace{cats: cats} },
		action.KindTrackRemove:           func() action.Action { return &TrackRemove{cats: cats} },
		action.KindRideCreate:            func() action.Action { return &RideCreate{cats: cats} },
		action.KindRideEntranceExitPlace: func() action.Action { return &RideEntranceExitPlace{} },
		action.KindRideSetColourScheme:   func() action.Action { return &RideSetColourScheme{cats: cats} },
		action.KindGuestSetFlags:         func() action.Action { return &GuestSetFlags{} },
		action.KindParkSetCash:           func() action.Action { return &ParkSetCash{} },
	})
}
