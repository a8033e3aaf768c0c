package action

import (
	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

// Visitor receives every parameter of an action, one call per field, in
// declaration order. encoding.Stream and encoding.Formatter implement it.
type Visitor interface {
	VisitBool(name string, v *bool)
	VisitUint8(name string, v *uint8)
	VisitUint16(name string, v *uint16)
	VisitUint32(name string, v *uint32)
	VisitInt32(name string, v *int32)
	VisitMoney(name string, v *park.Money)
	VisitString(name string, v *string)
	VisitCoordsXY(name string, v *park.CoordsXY)
	VisitCoordsXYZD(name string, v *park.CoordsXYZD)
	VisitRide(name string, v *park.RideID)
	VisitGuest(name string, v *park.GuestID)
}

var (
	_ Visitor = (*encoding.Stream)(nil)
	_ Visitor = (*encoding.Formatter)(nil)
)

// Action is one self-contained park mutation. Instances are single use: the
// dispatcher validates, seals and executes each one at most once.
type Action interface {
	Kind() Kind
	Flags() Flags

	// AcceptParameters hands every parameter to v in a fixed order.
	AcceptParameters(v Visitor)
	// Serialize writes or reads the header and parameters. It must consume
	// exactly the bytes it produces.
	Serialize(s *encoding.Stream)

	// Query validates against w without mutating it.
	Query(w park.View) Result
	// Execute applies the mutation. Callers run Query first.
	Execute(w park.Mutator) Result

	Player() park.PlayerID
	SetPlayer(p park.PlayerID)
	Command() CommandFlags
	SetCommand(c CommandFlags)
}

// Base carries the fields every action shares. Variants embed it.
type Base struct {
	player park.PlayerID
	cmd    CommandFlags
}

func (b *Base) Player() park.PlayerID     { return b.player }
func (b *Base) SetPlayer(p park.PlayerID) { b.player = p }
func (b *Base) Command() CommandFlags     { return b.cmd }
func (b *Base) SetCommand(c CommandFlags) { b.cmd = c }
func (b *Base) IsGhost() bool             { return b.cmd.Has(CmdGhost) }
func (b *Base) AddCommand(c CommandFlags) { b.cmd |= c }

// SerializeBase writes or reads the shared header.
func (b *Base) SerializeBase(s *encoding.Stream) {
	p := uint32(b.player)
	s.VisitUint32("player", &p)
	c := uint32(b.cmd)
	s.VisitUint32("cmd", &c)
	if s.IsLoading() {
		b.player = park.PlayerID(p)
		b.cmd = CommandFlags(c)
	}
}

// Spends reports whether a successful execution charges money and is recorded.
func Spends(a Action) bool {
	c := a.Command()
	return !c.Has(CmdGhost) && !c.Has(CmdNoSpend)
}
