package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type FrameType uint8

const (
	// FrameRequest carries a participant's validated-locally action to the authority.
	FrameRequest FrameType = 1
	// FrameSealed carries an authority-sequenced action to every participant.
	FrameSealed FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameRequest:
		return "request"
	case FrameSealed:
		return "sealed"
	default:
		return fmt.Sprintf("frame(%d)", uint8(t))
	}
}

// FrameHeaderLen is type(1) seq(4) tick(4) request(4) kind(2) len(4).
const FrameHeaderLen = 19

// MaxParamsLen bounds a single action's parameter block.
const MaxParamsLen = 64 << 10

var ErrBadFrame = errors.New("bad frame")

// Frame is one binary websocket message. All integers are big-endian.
type Frame struct {
	Type      FrameType
	Seq       uint32
	Tick      uint32
	RequestID uint32
	Kind      uint16
	Params    []byte
}

func EncodeFrame(f Frame) []byte {
	b := make([]byte, 0, FrameHeaderLen+len(f.Params))
	b = append(b, byte(f.Type))
	b = binary.BigEndian.AppendUint32(b, f.Seq)
	b = binary.BigEndian.AppendUint32(b, f.Tick)
	b = binary.BigEndian.AppendUint32(b, f.RequestID)
	b = binary.BigEndian.AppendUint16(b, f.Kind)
	b = binary.BigEndian.AppendUint32(b, uint32(len(f.Params)))
	return append(b, f.Params...)
}

// DecodeFrame parses b. The declared parameter length must match the bytes
// that follow the header exactly. Params aliases b.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) < FrameHeaderLen {
		return f, fmt.Errorf("%w: %d byte header", ErrBadFrame, len(b))
	}
	f.Type = FrameType(b[0])
	if f.Type != FrameRequest && f.Type != FrameSealed {
		return f, fmt.Errorf("%w: unknown type %d", ErrBadFrame, b[0])
	}
	f.Seq = binary.BigEndian.Uint32(b[1:5])
	f.Tick = binary.BigEndian.Uint32(b[5:9])
	f.RequestID = binary.BigEndian.Uint32(b[9:13])
	f.Kind = binary.BigEndian.Uint16(b[13:15])
	n := binary.BigEndian.Uint32(b[15:19])
	if n > MaxParamsLen {
		return f, fmt.Errorf("%w: params length %d", ErrBadFrame, n)
	}
	if rest := len(b) - FrameHeaderLen; uint32(rest) != n {
		return f, fmt.Errorf("%w: declared %d params bytes, got %d", ErrBadFrame, n, rest)
	}
	f.Params = b[FrameHeaderLen:]
	return f, nil
}
