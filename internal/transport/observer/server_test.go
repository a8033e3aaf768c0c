package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"parkcraft.ai/internal/observerproto"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/action/actions"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/permission"
	"parkcraft.ai/internal/sim/tuning"
)

func newFeed(t *testing.T) (*dispatch.Dispatcher, *Server, *httptest.Server) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	reg, err := actions.NewRegistry(cats)
	require.NoError(t, err)
	checker, err := permission.FromTuning(tuning.Defaults())
	require.NoError(t, err)

	lim := park.DefaultLimits()
	lim.Width, lim.Height = 16, 16
	s := park.NewState(lim, park.Rules{}, 100_000)
	s.AddGuest(park.Guest{ID: 1})
	d, err := dispatch.New(dispatch.Config{Mode: dispatch.ModeLocal, Actor: action.Actor{ID: 3, Kind: action.ActorHuman}}, s, reg, checker)
	require.NoError(t, err)

	srv := NewServer(d, "p1")
	d.AddSink(srv)
	d.AddRejectObserver(srv)
	mux := http.NewServeMux()
	mux.Handle("/v1/observer/ws", srv.WSHandler())
	mux.Handle("/v1/observer/bootstrap", srv.BootstrapHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return d, srv, ts
}

func subscribe(t *testing.T, ts *httptest.Server, srv *Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/observer/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	sub.Type, sub.ProtocolVersion = observerproto.TypeSubscribe, observerproto.Version
	b, _ := json.Marshal(sub)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
	require.Eventually(t, func() bool { return srv.Watchers() > 0 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, v))
}

func TestFeed_StreamsActionsAndRejects(t *testing.T) {
	d, srv, ts := newFeed(t)
	conn := subscribe(t, ts, srv, observerproto.SubscribeMsg{Rejects: true})

	_, err := d.Execute(context.Background(), &actions.GuestSetFlags{Guest: 1, Value: actions.GuestLitter})
	require.NoError(t, err)
	d.Submit(context.Background(), &actions.GuestSetFlags{Guest: 42}, nil)

	var got observerproto.ActionMsg
	readJSON(t, conn, &got)
	require.Equal(t, observerproto.TypeAction, got.Type)
	require.Equal(t, uint32(1), got.Seq)
	require.Equal(t, "guest_set_flags", got.Kind)
	require.Equal(t, uint32(3), got.Player)
	require.Equal(t, "ok", got.Status)

	var rej observerproto.RejectedMsg
	readJSON(t, conn, &rej)
	require.Equal(t, observerproto.TypeRejected, rej.Type)
	require.Equal(t, "precondition_failed", rej.Status)
}

func TestFeed_FiltersByPlayer(t *testing.T) {
	d, srv, ts := newFeed(t)
	conn := subscribe(t, ts, srv, observerproto.SubscribeMsg{Player: 9})

	_, err := d.Execute(context.Background(), &actions.GuestSetFlags{Guest: 1})
	require.NoError(t, err)
	d.SetActor(action.Actor{ID: 9, Kind: action.ActorHuman})
	_, err = d.Execute(context.Background(), &actions.GuestSetFlags{Guest: 1, Value: actions.GuestTracking})
	require.NoError(t, err)

	var got observerproto.ActionMsg
	readJSON(t, conn, &got)
	require.Equal(t, uint32(2), got.Seq, "player 3's action is filtered out")
	require.Equal(t, uint32(9), got.Player)
}

func TestBootstrap(t *testing.T) {
	d, _, ts := newFeed(t)
	_, err := d.Execute(context.Background(), &actions.GuestSetFlags{Guest: 1})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/v1/observer/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	require.Equal(t, "p1", b.ParkID)
	require.Equal(t, uint32(1), b.LastSeq)
	require.Equal(t, d.Digest(), b.Digest)
	require.Equal(t, int64(100_000), b.Cash)
}

func TestLoopbackOnly(t *testing.T) {
	require.True(t, isLoopbackRemote("127.0.0.1:5000"))
	require.True(t, isLoopbackRemote("[::1]:5000"))
	require.False(t, isLoopbackRemote("10.0.0.2:5000"))
	require.False(t, isLoopbackRemote("garbage"))
}
