package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

// Guest flag bits.
const (
	GuestLeavingPark uint32 = 1 << 0
	GuestTracking    uint32 = 1 << 3
	GuestExplode     uint32 = 1 << 4
	GuestLitter      uint32 = 1 << 5
)

type GuestSetFlags struct {
	action.Base

	Guest park.GuestID
	Value uint32
}

func (a *GuestSetFlags) Kind() action.Kind { return action.KindGuestSetFlags }
func (a *GuestSetFlags) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked | action.FlagAllowWhilePaused
}

func (a *GuestSetFlags) AcceptParameters(v action.Visitor) {
	v.VisitGuest("guest", &a.Guest)
	v.VisitUint32("flags", &a.Value)
}

func (a *GuestSetFlags) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

func (a *GuestSetFlags) Query(w park.View) action.Result {
	if _, ok := w.Guest(a.Guest); !ok {
		return action.Fail(action.StatusPreconditionFailed, action.MsgCantChangeGuestFlags, action.MsgGuestNotFound)
	}
	return action.OK()
}

func (a *GuestSetFlags) Execute(w park.Mutator) action.Result {
	if !w.SetGuestFlags(a.Guest, a.Value) {
		return action.Fail(action.StatusPreconditionFailed, action.MsgCantChangeGuestFlags, action.MsgGuestNotFound)
	}
	return action.OK()
}
