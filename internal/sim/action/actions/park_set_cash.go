package actions

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

// ParkSetCash is the cash cheat. It is only accepted in the editor or a
// sandbox park.
type ParkSetCash struct {
	action.Base

	Amount park.Money
}

func (a *ParkSetCash) Kind() action.Kind { return action.KindParkSetCash }
func (a *ParkSetCash) Flags() action.Flags {
	return action.FlagMutates | action.FlagLogged | action.FlagNetworked |
		action.FlagAllowWhilePaused | action.FlagEditorOnly
}

func (a *ParkSetCash) AcceptParameters(v action.Visitor) {
	v.VisitMoney("amount", &a.Amount)
}

func (a *ParkSetCash) Serialize(s *encoding.Stream) {
	a.SerializeBase(s)
	a.AcceptParameters(s)
}

func (a *ParkSetCash) Query(w park.View) action.Result {
	limit := w.Limits().MaxCash
	if a.Amount < 0 || (limit > 0 && a.Amount > limit) {
		return action.Fail(action.StatusPreconditionFailed, action.MsgCantSetCash, action.MsgInvalidAmount).With("max", limit)
	}
	return action.OK()
}

func (a *ParkSetCash) Execute(w park.Mutator) action.Result {
	if r := a.Query(w); !r.OK() {
		return r
	}
	w.SetCash(a.Amount)
	return action.OK()
}
