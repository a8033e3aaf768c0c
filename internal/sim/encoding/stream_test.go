package encoding

import (
	"errors"
	"strings"
	"testing"

	"parkcraft.ai/internal/sim/park"
)

type sample struct {
	ok    bool
	kind  uint8
	speed uint16
	flags uint32
	z     int32
	cost  park.Money
	name  string
	at    park.CoordsXY
	pos   park.CoordsXYZD
	ride  park.RideID
	guest park.GuestID
}

func (p *sample) visit(v interface {
	VisitBool(string, *bool)
	VisitUint8(string, *uint8)
	VisitUint16(string, *uint16)
	VisitUint32(string, *uint32)
	VisitInt32(string, *int32)
	VisitMoney(string, *park.Money)
	VisitString(string, *string)
	VisitCoordsXY(string, *park.CoordsXY)
	VisitCoordsXYZD(string, *park.CoordsXYZD)
	VisitRide(string, *park.RideID)
	VisitGuest(string, *park.GuestID)
}) {
	v.VisitBool("ok", &p.ok)
	v.VisitUint8("kind", &p.kind)
	v.VisitUint16("speed", &p.speed)
	v.VisitUint32("flags", &p.flags)
	v.VisitInt32("z", &p.z)
	v.VisitMoney("cost", &p.cost)
	v.VisitString("name", &p.name)
	v.VisitCoordsXY("at", &p.at)
	v.VisitCoordsXYZD("pos", &p.pos)
	v.VisitRide("ride", &p.ride)
	v.VisitGuest("guest", &p.guest)
}

func TestStreamRoundTrip(t *testing.T) {
	in := sample{
		ok: true, kind: 7, speed: 300, flags: 0xdeadbeef, z: -16, cost: -1250,
		name: "Mine Train ★", at: park.CoordsXY{X: 64, Y: -32},
		pos:  park.CoordsXYZD{X: 1, Y: 2, Z: 3, Direction: 3}, ride: 12, guest: 99,
	}
	w := NewWriter()
	in.visit(w)
	if err := w.Err(); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out sample
	r := NewReader(w.Bytes())
	out.visit(r)
	if err := r.Finish(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestStreamBigEndianLayout(t *testing.T) {
	w := NewWriter()
	v := uint16(0x0102)
	w.VisitUint16("", &v)
	z := int32(-1)
	w.VisitInt32("", &z)
	want := []byte{0x01, 0x02, 0xff, 0xff, 0xff, 0xff}
	if string(w.Bytes()) != string(want) {
		t.Fatalf("got % x want % x", w.Bytes(), want)
	}
}

func TestStreamTruncated(t *testing.T) {
	w := NewWriter()
	in := sample{name: "abc", pos: park.CoordsXYZD{X: 5}}
	in.visit(w)
	full := w.Bytes()

	for cut := 0; cut < len(full); cut++ {
		var out sample
		r := NewReader(full[:cut])
		out.visit(r)
		if err := r.Finish(); !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut=%d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestStreamTrailingBytes(t *testing.T) {
	w := NewWriter()
	v := uint8(1)
	w.VisitUint8("", &v)
	r := NewReader(append(w.Bytes(), 0))
	var out uint8
	r.VisitUint8("", &out)
	if err := r.Finish(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestStreamRejectsBadBoolAndLongString(t *testing.T) {
	r := NewReader([]byte{2})
	var b bool
	r.VisitBool("", &b)
	if !errors.Is(r.Err(), ErrMalformed) {
		t.Fatalf("bool: got %v", r.Err())
	}

	r = NewReader([]byte{0xff, 0xff})
	var s string
	r.VisitString("", &s)
	if !errors.Is(r.Err(), ErrMalformed) {
		t.Fatalf("string: got %v", r.Err())
	}
}

func TestStreamWriterRefusesUnencodableStrings(t *testing.T) {
	for _, in := range []string{"ride\xff", strings.Repeat("x", MaxStringLen+1)} {
		w := NewWriter()
		str := in
		w.VisitString("", &str)
		if err := w.Finish(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", in[:min(len(in), 8)], err)
		}
	}

	w := NewWriter()
	str := strings.Repeat("x", MaxStringLen)
	w.VisitString("", &str)
	r := NewReader(w.Bytes())
	var out string
	r.VisitString("", &out)
	if err := r.Finish(); err != nil || out != str {
		t.Fatalf("max length string: err=%v len=%d", err, len(out))
	}
}

func TestFormatter(t *testing.T) {
	in := sample{ok: true, ride: 3, pos: park.CoordsXYZD{X: 64, Y: 96, Z: 16, Direction: 2}, cost: 150}
	var f Formatter
	in.visit(&f)
	got := f.String()
	want := `ok=true, kind=0, speed=0, flags=0x0, z=0, cost=1.50, name="", at={x:0,y:0}, pos={x:64,y:96,z:16,d:2}, ride=3, guest=0`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}
