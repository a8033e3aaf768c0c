package dispatch

import (
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/park"
)

// ReplayEntry is one executed action as recorded for replay. Params holds the
// full serialized action, base header included, so an entry can be decoded
// without any other context.
type ReplayEntry struct {
	Tick     uint32 `json:"tick"`
	Seq      uint32 `json:"seq"`
	Kind     uint16 `json:"kind"`
	KindName string `json:"kind_name"`
	Player   uint32 `json:"player"`
	Params   []byte `json:"params"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Cost     int64  `json:"cost"`
	// Digest is the park state digest after the action ran, when recorded.
	Digest string `json:"digest,omitempty"`
}

// Sink receives replay entries in execution order. Record is called from the
// dispatcher's queue goroutine and should not block for long.
type Sink interface {
	Record(e ReplayEntry) error
}

type SinkFunc func(e ReplayEntry) error

func (f SinkFunc) Record(e ReplayEntry) error { return f(e) }

// Rejection describes an action the pipeline refused before it was sequenced.
type Rejection struct {
	Tick   uint32
	Player park.PlayerID
	Kind   action.Kind
	Result action.Result
}

// RejectObserver hears about every Rejection. Rejections never reach a Sink.
type RejectObserver interface {
	Rejected(r Rejection) error
}

func newEntry(it queued, params []byte, r action.Result, digest string) ReplayEntry {
	a := it.action
	return ReplayEntry{
		Tick:     it.tick,
		Seq:      it.seq,
		Kind:     uint16(a.Kind()),
		KindName: a.Kind().String(),
		Player:   uint32(a.Player()),
		Params:   params,
		Status:   r.Status.String(),
		Message:  string(r.Message),
		Cost:     int64(r.Cost),
		Digest:   digest,
	}
}
