package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/park"
)

// Receive handles one binary frame from peer. The authority accepts
// requests, a participant accepts sealed actions; anything else is a
// protocol violation and flags the peer.
func (d *Dispatcher) Receive(ctx context.Context, peer PeerID, raw []byte) action.Result {
	ctx, span := d.tracer.Start(ctx, "dispatch.Receive", trace.WithAttributes(
		attribute.String("peer", string(peer)),
		attribute.Int("frame.bytes", len(raw)),
	))
	defer span.End()

	r := d.receive(ctx, peer, raw)
	span.SetAttributes(attribute.String("action.status", r.Status.String()))
	if !r.OK() {
		span.SetStatus(codes.Error, string(r.Message))
	}
	return r
}

func (d *Dispatcher) receive(ctx context.Context, peer PeerID, raw []byte) action.Result {
	f, err := protocol.DecodeFrame(raw)
	if err != nil {
		return d.violation(peer, action.MsgMalformedAction, err)
	}
	switch {
	case d.cfg.Mode == ModeAuthority && f.Type == protocol.FrameRequest:
		return d.receiveRequest(ctx, peer, f)
	case d.cfg.Mode == ModeParticipant && f.Type == protocol.FrameSealed:
		return d.receiveSealed(peer, f)
	}
	return d.violation(peer, action.MsgMalformedAction, fmt.Errorf("%s frame in %s mode", f.Type, d.cfg.Mode))
}

func decodeFailure(err error) action.MessageID {
	if errors.Is(err, action.ErrUnknownKind) {
		return action.MsgUnknownAction
	}
	return action.MsgMalformedAction
}

func (d *Dispatcher) receiveRequest(ctx context.Context, peer PeerID, f protocol.Frame) action.Result {
	d.mu.Lock()
	actor, ok := d.peers[peer]
	lim := d.limiters[peer]
	session := d.sessions[peer]
	d.mu.Unlock()
	if !ok {
		return d.violation(peer, action.MsgUnknownPeer, errors.New("request from unregistered peer"))
	}

	a, err := d.reg.Decode(action.Kind(f.Kind), f.Params)
	if err != nil {
		r := d.violation(peer, decodeFailure(err), err)
		d.sendReject(peer, f, r)
		return r
	}
	d.stage(StageReceived)
	if !lim.Allow() {
		r := action.Fail(action.StatusPreconditionFailed, action.MsgActionRejected, action.MsgRateLimited)
		d.sendReject(peer, f, d.reject(a, nil, r))
		return r
	}
	key := dedupeKey{peer: peer, session: session, request: f.RequestID}
	if d.dedupe.Contains(key) {
		d.metrics.Violations.WithLabelValues(string(action.MsgDuplicate)).Inc()
		r := action.Fail(action.StatusProtocolViolation, action.MsgActionRejected, action.MsgDuplicate)
		d.sendReject(peer, f, d.reject(a, nil, r))
		return r
	}
	d.dedupe.Add(key, struct{}{})

	// Session identity wins over whatever the payload claims.
	a.SetPlayer(actor.ID)
	a.SetCommand(a.Command() & peerCommands)

	r := d.validate(actor, a)
	if !r.OK() {
		d.sendReject(peer, f, d.reject(a, nil, r))
		return r
	}
	r = d.seal(a, r, f.RequestID, peer, nil)
	if !r.OK() {
		d.sendReject(peer, f, r)
	}
	return r
}

func (d *Dispatcher) receiveSealed(peer PeerID, f protocol.Frame) action.Result {
	a, err := d.reg.Decode(action.Kind(f.Kind), f.Params)
	if err != nil {
		return d.violation(peer, decodeFailure(err), err)
	}

	d.mu.Lock()
	switch {
	case f.Seq != d.seq+1:
		err = fmt.Errorf("seq %d after %d", f.Seq, d.seq)
	case f.Tick < d.sealedTick:
		err = fmt.Errorf("tick %d behind %d", f.Tick, d.sealedTick)
	}
	if err != nil {
		d.mu.Unlock()
		return d.violation(peer, action.MsgOutOfSequence, err)
	}
	d.seq = f.Seq
	d.sealedTick = f.Tick
	if f.Tick > d.tick {
		d.tick = f.Tick
	}
	var cb Callback
	if a.Player() == d.cfg.Actor.ID {
		if p, ok := d.pending[f.RequestID]; ok {
			delete(d.pending, f.RequestID)
			if p.stop != nil {
				p.stop()
			}
			cb = p.callback
		}
	}
	d.queue.push(queued{tick: f.Tick, seq: f.Seq, action: a, callback: cb, peer: peer})
	d.metrics.QueueDepth.Set(float64(d.queue.Len()))
	d.mu.Unlock()

	d.stage(StageReceived)
	return action.OK()
}

// ReceiveReject completes the pending request a REJECT answers. It reports
// false when no such request is pending, which happens after cancellation.
func (d *Dispatcher) ReceiveReject(msg protocol.RejectMsg) bool {
	p, ok := d.takePending(msg.RequestID)
	if !ok {
		return false
	}
	r := ResultFromReject(msg)
	d.stage(StageRejected)
	d.metrics.Actions.WithLabelValues(action.Kind(msg.Kind).String(), r.Status.String()).Inc()
	d.log.Infof("[%s] tick: %d, request %d rejected by authority: %s", d.cfg.Realm, d.Tick(), msg.RequestID, r)
	if p.callback != nil {
		p.callback(r)
	}
	return true
}

func (d *Dispatcher) violation(peer PeerID, msg action.MessageID, err error) action.Result {
	d.metrics.Violations.WithLabelValues(string(msg)).Inc()
	d.log.WithFields(logrus.Fields{"peer": peer, "reason": msg}).WithError(err).Warn("protocol violation")
	if d.reporter != nil {
		d.reporter.FlagPeer(peer, string(msg))
	}
	return action.Fail(action.StatusProtocolViolation, action.MsgActionRejected, msg)
}

func (d *Dispatcher) sendReject(peer PeerID, f protocol.Frame, r action.Result) {
	d.mu.Lock()
	t := d.transport
	d.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.SendReject(peer, RejectFromResult(f.RequestID, action.Kind(f.Kind), r)); err != nil {
		d.log.WithError(err).WithField("peer", peer).Warn("reject send failed")
	}
}

// RejectFromResult summarizes a failed Result for the peer that asked.
func RejectFromResult(requestID uint32, k action.Kind, r action.Result) protocol.RejectMsg {
	return protocol.RejectMsg{
		Type:      protocol.TypeReject,
		RequestID: requestID,
		Kind:      uint16(k),
		Status:    r.Status.String(),
		Code:      protocol.NormalizeCode(r.Status.Code()),
		Title:     string(r.Title),
		Message:   string(r.Message),
		Args:      r.Args,
		Cost:      int64(r.Cost),
	}
}

// ResultFromReject rebuilds the Result a REJECT carries. Unknown statuses and
// message ids are normalized rather than trusted.
func ResultFromReject(msg protocol.RejectMsg) action.Result {
	st, ok := action.ParseStatus(msg.Status)
	if !ok || st == action.StatusOK {
		st = action.StatusInternalInvariantViolation
	}
	r := action.Fail(st, action.MessageID(msg.Title), action.MessageID(msg.Message))
	for k, v := range msg.Args {
		r = r.With(k, v)
	}
	r.Cost = park.Money(msg.Cost)
	return r
}
