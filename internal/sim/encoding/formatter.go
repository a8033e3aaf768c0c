package encoding

import (
	"strconv"
	"strings"

	"parkcraft.ai/internal/sim/park"
)

// Formatter renders visited parameters as "name=value" pairs for log lines.
type Formatter struct {
	sb strings.Builder
	n  int
}

func (f *Formatter) String() string { return f.sb.String() }

func (f *Formatter) field(name, value string) {
	if f.n > 0 {
		f.sb.WriteString(", ")
	}
	f.n++
	f.sb.WriteString(name)
	f.sb.WriteByte('=')
	f.sb.WriteString(value)
}

func (f *Formatter) VisitBool(name string, v *bool)     { f.field(name, strconv.FormatBool(*v)) }
func (f *Formatter) VisitUint8(name string, v *uint8)   { f.field(name, strconv.FormatUint(uint64(*v), 10)) }
func (f *Formatter) VisitUint16(name string, v *uint16) { f.field(name, strconv.FormatUint(uint64(*v), 10)) }
func (f *Formatter) VisitUint32(name string, v *uint32) { f.field(name, "0x"+strconv.FormatUint(uint64(*v), 16)) }
func (f *Formatter) VisitInt32(name string, v *int32)   { f.field(name, strconv.FormatInt(int64(*v), 10)) }
func (f *Formatter) VisitMoney(name string, v *park.Money) {
	f.field(name, v.String())
}
func (f *Formatter) VisitString(name string, v *string) { f.field(name, strconv.Quote(*v)) }
func (f *Formatter) VisitCoordsXY(name string, v *park.CoordsXY) {
	f.field(name, v.String())
}
func (f *Formatter) VisitCoordsXYZD(name string, v *park.CoordsXYZD) {
	f.field(name, v.String())
}
func (f *Formatter) VisitRide(name string, v *park.RideID) {
	f.field(name, strconv.FormatUint(uint64(*v), 10))
}
func (f *Formatter) VisitGuest(name string, v *park.GuestID) {
	f.field(name, strconv.FormatUint(uint64(*v), 10))
}
