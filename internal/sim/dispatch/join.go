package dispatch

import (
	"errors"
	"fmt"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/park"
)

// JoinState is everything a participant needs to start in lockstep: the
// park after AppliedSeq, and the frames sealed after it that have not run
// yet. Every later frame reaches the peer through Broadcast.
type JoinState struct {
	AppliedSeq uint32
	// Tick is the earliest tick a following frame can carry.
	Tick   uint32
	Digest string
	Park   park.Export
	Queued [][]byte
}

var ErrNotExportable = errors.New("dispatch: world cannot be exported")

// Attach registers peer and hands fn a consistent JoinState. Execution,
// sealing and broadcasting are held off while fn runs, so fn must start
// delivering broadcasts to peer before it returns and must not call back
// into the dispatcher.
func (d *Dispatcher) Attach(peer PeerID, actor action.Actor, fn func(JoinState) error) error {
	if d.cfg.Mode != ModeAuthority {
		return fmt.Errorf("dispatch: attach in %s mode", d.cfg.Mode)
	}
	return d.withJoinState(func(st JoinState) error {
		if err := fn(st); err != nil {
			return err
		}
		d.addPeerLocked(peer, actor)
		return nil
	})
}

// Checkpoint returns the park after the last executed action, for snapshots.
// Queued frames are included but a snapshot only keeps the park.
func (d *Dispatcher) Checkpoint() (JoinState, error) {
	var out JoinState
	err := d.withJoinState(func(st JoinState) error {
		out = st
		return nil
	})
	return out, err
}

// withJoinState runs fn with procMu, the world read lock and d.mu held.
func (d *Dispatcher) withJoinState(fn func(JoinState) error) error {
	d.procMu.Lock()
	defer d.procMu.Unlock()
	d.worldMu.RLock()
	defer d.worldMu.RUnlock()

	exp, ok := d.world.(park.Exporter)
	if !ok {
		return ErrNotExportable
	}
	st := JoinState{
		AppliedSeq: d.applied,
		Digest:     d.world.Digest(),
		Park:       exp.Export(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	st.Tick = d.tick
	for _, it := range d.queue.sorted() {
		if it.tick < st.Tick {
			st.Tick = it.tick
		}
		params, err := action.Encode(it.action)
		if err != nil {
			return err
		}
		st.Queued = append(st.Queued, protocol.EncodeFrame(protocol.Frame{
			Type:   protocol.FrameSealed,
			Seq:    it.seq,
			Tick:   it.tick,
			Kind:   uint16(it.action.Kind()),
			Params: params,
		}))
	}
	return fn(st)
}

// FailPending completes every forwarded request with r. A participant calls
// it when its link to the authority drops, since no answer will arrive.
func (d *Dispatcher) FailPending(r action.Result) int {
	d.mu.Lock()
	ps := make([]*pending, 0, len(d.pending))
	for rid, p := range d.pending {
		ps = append(ps, p)
		delete(d.pending, rid)
	}
	d.mu.Unlock()
	for _, p := range ps {
		if p.stop != nil {
			p.stop()
		}
		if p.callback != nil {
			p.callback(r)
		}
	}
	return len(ps)
}
