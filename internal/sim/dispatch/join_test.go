package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/action/actions"
	"parkcraft.ai/internal/sim/park"
)

func TestAttach_JoinStateCatchesParticipantUp(t *testing.T) {
	cats := loadCats(t)
	a := newNode(t, cats, Config{Mode: ModeAuthority, Actor: action.ServerActor()}, newPark(park.Rules{}))
	ctx := context.Background()
	a.Submit(ctx, actions.NewRideCreate(cats, 1, "Racer"), nil)
	a.StepOnce()
	a.Submit(ctx, &actions.GuestSetFlags{Guest: 1, Value: actions.GuestLitter}, nil)

	var st JoinState
	err := a.Attach("p1", player(5), func(js JoinState) error {
		st = js
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint32(1), st.AppliedSeq)
	require.Equal(t, a.Digest(), st.Digest)
	require.Len(t, st.Queued, 1)

	f, err := protocol.DecodeFrame(st.Queued[0])
	require.NoError(t, err)
	require.Equal(t, protocol.FrameSealed, f.Type)
	require.Equal(t, uint32(2), f.Seq)
	require.GreaterOrEqual(t, f.Tick, st.Tick)

	restored, err := park.Import(st.Park)
	require.NoError(t, err)
	require.Equal(t, st.Digest, restored.Digest())

	p := newNode(t, cats, Config{Mode: ModeParticipant, Actor: player(5)}, newPark(park.Rules{}))
	p.ReplaceWorld(restored, st.AppliedSeq, st.Tick)
	r := p.Receive(ctx, authorityPeer, st.Queued[0])
	require.True(t, r.OK(), r.String())
	require.Equal(t, 1, p.ProcessQueue())

	a.StepOnce()
	require.Equal(t, a.Digest(), p.Digest())
}

func TestAttach_RefusedOutsideAuthorityAndOnCallbackError(t *testing.T) {
	cats := loadCats(t)
	local := newNode(t, cats, Config{Mode: ModeLocal, Actor: player(1)}, newPark(park.Rules{}))
	require.Error(t, local.Attach("p1", player(2), func(JoinState) error { return nil }))

	a := newNode(t, cats, Config{Mode: ModeAuthority, Actor: action.ServerActor()}, newPark(park.Rules{}))
	boom := errors.New("boom")
	require.ErrorIs(t, a.Attach("p1", player(2), func(JoinState) error { return boom }), boom)

	raw := protocol.EncodeFrame(protocol.Frame{
		Type:      protocol.FrameRequest,
		RequestID: 1,
		Kind:      uint16(action.KindGuestSetFlags),
		Params:    encode(t, &actions.GuestSetFlags{Guest: 1}),
	})
	r := a.Receive(context.Background(), "p1", raw)
	require.Equal(t, action.MsgUnknownPeer, r.Message, "a failed attach must not register the peer")
}

type blackhole struct{}

func (blackhole) Broadcast([]byte) error                      { return errors.New("no") }
func (blackhole) SendRequest([]byte) error                    { return nil }
func (blackhole) SendReject(PeerID, protocol.RejectMsg) error { return errors.New("no") }

func TestFailPending_CompletesEveryRequest(t *testing.T) {
	cats := loadCats(t)
	p := newNode(t, cats, Config{Mode: ModeParticipant, Actor: player(1)}, newPark(park.Rules{}))
	p.SetTransport(blackhole{})

	var rec resultRecorder
	p.Submit(context.Background(), &actions.GuestSetFlags{Guest: 1}, rec.cb)
	p.Submit(context.Background(), &actions.GuestSetFlags{Guest: 1, Value: actions.GuestLitter}, rec.cb)
	require.Equal(t, 2, p.Pending())

	lost := action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgConnectionLost)
	require.Equal(t, 2, p.FailPending(lost))
	require.Zero(t, p.Pending())
	require.Equal(t, []action.Result{lost, lost}, rec.all())
	require.Zero(t, p.FailPending(lost))
}

type rejectLog struct {
	mu   sync.Mutex
	seen []Rejection
}

func (l *rejectLog) Rejected(r Rejection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, r)
	return nil
}

func TestRejectObserver_HearsRefusalsOnly(t *testing.T) {
	cats := loadCats(t)
	d := newNode(t, cats, Config{Mode: ModeLocal, Actor: player(1)}, newPark(park.Rules{}))
	obs := &rejectLog{}
	d.AddRejectObserver(obs)

	d.Submit(context.Background(), &actions.GuestSetFlags{Guest: 1}, nil)
	d.Submit(context.Background(), &actions.GuestSetFlags{Guest: 99}, nil)

	require.Len(t, obs.seen, 1)
	got := obs.seen[0]
	require.Equal(t, park.PlayerID(1), got.Player)
	require.Equal(t, action.KindGuestSetFlags, got.Kind)
	require.Equal(t, action.StatusPreconditionFailed, got.Result.Status)
}

func TestCheckpoint_MatchesAppliedState(t *testing.T) {
	cats := loadCats(t)
	d := newNode(t, cats, Config{Mode: ModeLocal, Actor: player(1)}, newPark(park.Rules{}))
	_, err := d.Execute(context.Background(), actions.NewRideCreate(cats, 1, ""))
	require.NoError(t, err)

	st, err := d.Checkpoint()
	require.NoError(t, err)
	require.Equal(t, uint32(1), st.AppliedSeq)
	require.Equal(t, d.Digest(), st.Digest)
	require.Empty(t, st.Queued)
	require.Len(t, st.Park.Rides, 1)
}
