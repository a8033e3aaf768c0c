package action

import "parkcraft.ai/internal/sim/park"

// RideResolver is implemented by actions whose target ride is found through
// world state rather than carried as a parameter.
type RideResolver interface {
	ResolveRides(w park.View) []park.RideID
}

// ReferencedRides lists every ride an action touches: ride parameters first,
// in visiting order, then anything the action resolves from w.
func ReferencedRides(a Action, w park.View) []park.RideID {
	var c rideCollector
	a.AcceptParameters(&c)
	if r, ok := a.(RideResolver); ok && w != nil {
		c.rides = append(c.rides, r.ResolveRides(w)...)
	}
	return c.rides
}

type rideCollector struct{ rides []park.RideID }

func (c *rideCollector) VisitBool(string, *bool)                  {}
func (c *rideCollector) VisitUint8(string, *uint8)                {}
func (c *rideCollector) VisitUint16(string, *uint16)              {}
func (c *rideCollector) VisitUint32(string, *uint32)              {}
func (c *rideCollector) VisitInt32(string, *int32)                {}
func (c *rideCollector) VisitMoney(string, *park.Money)           {}
func (c *rideCollector) VisitString(string, *string)              {}
func (c *rideCollector) VisitCoordsXY(string, *park.CoordsXY)     {}
func (c *rideCollector) VisitCoordsXYZD(string, *park.CoordsXYZD) {}
func (c *rideCollector) VisitGuest(string, *park.GuestID)         {}
func (c *rideCollector) VisitRide(_ string, v *park.RideID)       { c.rides = append(c.rides, *v) }
