package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"parkcraft.ai/internal/sim/park"
)

// MaxStringLen bounds strings carried in action parameters.
const MaxStringLen = 1024

var (
	ErrTruncated = errors.New("stream truncated")
	ErrMalformed = errors.New("stream malformed")
)

// Stream reads or writes action parameters in a fixed big-endian layout.
// The same visiting code drives both directions: when loading, every Visit
// call overwrites its target from the buffer; when saving, it appends the
// target to the buffer.
//
// Decode failures are sticky: after the first error every read is a no-op
// and Err reports the cause.
type Stream struct {
	loading bool
	buf     []byte
	off     int
	err     error
}

func NewWriter() *Stream { return &Stream{} }

func NewReader(b []byte) *Stream { return &Stream{loading: true, buf: b} }

func (s *Stream) IsLoading() bool { return s.loading }
func (s *Stream) Err() error      { return s.err }
func (s *Stream) Bytes() []byte   { return s.buf }

// Remaining is the number of unread bytes in a loading stream.
func (s *Stream) Remaining() int { return len(s.buf) - s.off }

// Finish reports the sticky error, or ErrMalformed if a loading stream still
// has unread bytes.
func (s *Stream) Finish() error {
	if s.err != nil {
		return s.err
	}
	if s.loading && s.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, s.Remaining())
	}
	return nil
}

func (s *Stream) take(n int) []byte {
	if s.err != nil {
		return nil
	}
	if s.Remaining() < n {
		s.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, s.off, s.Remaining())
		return nil
	}
	b := s.buf[s.off : s.off+n]
	s.off += n
	return b
}

func (s *Stream) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) u8(v *uint8) {
	if !s.loading {
		s.buf = append(s.buf, *v)
		return
	}
	if b := s.take(1); b != nil {
		*v = b[0]
	}
}

func (s *Stream) u16(v *uint16) {
	if !s.loading {
		s.buf = binary.BigEndian.AppendUint16(s.buf, *v)
		return
	}
	if b := s.take(2); b != nil {
		*v = binary.BigEndian.Uint16(b)
	}
}

func (s *Stream) u32(v *uint32) {
	if !s.loading {
		s.buf = binary.BigEndian.AppendUint32(s.buf, *v)
		return
	}
	if b := s.take(4); b != nil {
		*v = binary.BigEndian.Uint32(b)
	}
}

func (s *Stream) u64(v *uint64) {
	if !s.loading {
		s.buf = binary.BigEndian.AppendUint64(s.buf, *v)
		return
	}
	if b := s.take(8); b != nil {
		*v = binary.BigEndian.Uint64(b)
	}
}

func (s *Stream) i32(v *int32) {
	u := uint32(*v)
	s.u32(&u)
	if s.loading {
		*v = int32(u)
	}
}

func (s *Stream) VisitBool(_ string, v *bool) {
	var b uint8
	if *v {
		b = 1
	}
	s.u8(&b)
	if !s.loading {
		return
	}
	switch b {
	case 0:
		*v = false
	case 1:
		*v = true
	default:
		s.fail(fmt.Errorf("%w: bool byte %d", ErrMalformed, b))
	}
}

func (s *Stream) VisitUint8(_ string, v *uint8)   { s.u8(v) }
func (s *Stream) VisitUint16(_ string, v *uint16) { s.u16(v) }
func (s *Stream) VisitUint32(_ string, v *uint32) { s.u32(v) }
func (s *Stream) VisitInt32(_ string, v *int32)   { s.i32(v) }

func (s *Stream) VisitMoney(_ string, v *park.Money) {
	u := uint64(*v)
	s.u64(&u)
	if s.loading {
		*v = park.Money(int64(u))
	}
}

func (s *Stream) VisitString(_ string, v *string) {
	if !s.loading {
		if len(*v) > MaxStringLen {
			s.fail(fmt.Errorf("%w: string length %d", ErrMalformed, len(*v)))
			return
		}
		if !utf8.ValidString(*v) {
			s.fail(fmt.Errorf("%w: invalid utf-8", ErrMalformed))
			return
		}
		n := uint16(len(*v))
		s.u16(&n)
		s.buf = append(s.buf, *v...)
		return
	}
	var n uint16
	s.u16(&n)
	if s.err != nil {
		return
	}
	if int(n) > MaxStringLen {
		s.fail(fmt.Errorf("%w: string length %d", ErrMalformed, n))
		return
	}
	b := s.take(int(n))
	if b == nil {
		return
	}
	if !utf8.Valid(b) {
		s.fail(fmt.Errorf("%w: invalid utf-8", ErrMalformed))
		return
	}
	*v = string(b)
}

func (s *Stream) VisitCoordsXY(_ string, v *park.CoordsXY) {
	s.i32(&v.X)
	s.i32(&v.Y)
}

func (s *Stream) VisitCoordsXYZD(_ string, v *park.CoordsXYZD) {
	s.i32(&v.X)
	s.i32(&v.Y)
	s.i32(&v.Z)
	s.u8(&v.Direction)
}

func (s *Stream) VisitRide(_ string, v *park.RideID) {
	u := uint16(*v)
	s.u16(&u)
	if s.loading {
		*v = park.RideID(u)
	}
}

func (s *Stream) VisitGuest(_ string, v *park.GuestID) {
	u := uint32(*v)
	s.u32(&u)
	if s.loading {
		*v = park.GuestID(u)
	}
}
