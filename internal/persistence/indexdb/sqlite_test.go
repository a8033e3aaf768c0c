package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAction}

	_ = s.Record(dispatch.ReplayEntry{Seq: 2})
	_ = s.Rejected(dispatch.Rejection{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropActionTotal != 1 || st.DropRejectTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesAndQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert catalogs: %v", err)
	}

	entries := []dispatch.ReplayEntry{
		{Seq: 1, Tick: 3, Kind: 3, KindName: "ride_create", Player: 1, Params: []byte{1}, Status: "ok"},
		{Seq: 2, Tick: 4, Kind: 1, KindName: "track_place", Player: 1, Params: []byte{2}, Status: "ok", Cost: 1100, Digest: "d2"},
		{Seq: 3, Tick: 4, Kind: 1, KindName: "track_place", Player: 2, Params: []byte{3}, Status: "precondition_failed", Message: "tile_occupied"},
		{Seq: 4, Tick: 9, Kind: 1, KindName: "track_place", Player: 2, Params: []byte{4}, Status: "ok", Cost: 900},
	}
	for _, e := range entries {
		if err := idx.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	r := action.Fail(action.StatusAuthorizationDenied, action.MsgActionRejected, action.MsgRideNotOwned)
	_ = idx.Rejected(dispatch.Rejection{Tick: 5, Player: park.PlayerID(2), Kind: action.KindTrackRemove, Result: r})
	idx.RecordSnapshot("snapshots/0000000004.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Seq: 4, Tick: 9, Digest: "d4"}})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rd, err := OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer rd.Close()
	ctx := context.Background()

	rows, err := rd.Actions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("actions: %v", err)
	}
	if len(rows) != 2 || rows[0].Seq != 3 || rows[1].Cost != 900 {
		t.Fatalf("player 2 rows=%+v", rows)
	}

	kinds, err := rd.ByKind(ctx)
	if err != nil {
		t.Fatalf("by kind: %v", err)
	}
	want := []KindSummary{
		{KindName: "ride_create", Status: "ok", Count: 1},
		{KindName: "track_place", Status: "ok", Count: 2, Cost: 2000},
		{KindName: "track_place", Status: "precondition_failed", Count: 1},
	}
	if len(kinds) != len(want) {
		t.Fatalf("kinds=%+v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kind %d = %+v want %+v", i, kinds[i], want[i])
		}
	}

	players, err := rd.ByPlayer(ctx)
	if err != nil {
		t.Fatalf("by player: %v", err)
	}
	if len(players) != 2 || players[0].Cost != 1100 || players[1].LastTick != 9 {
		t.Fatalf("players=%+v", players)
	}

	if n, err := rd.RejectCount(ctx); err != nil || n != 1 {
		t.Fatalf("rejects=%d err=%v", n, err)
	}
	snap, seq, err := rd.LatestSnapshot(ctx)
	if err != nil || seq != 4 || snap != "snapshots/0000000004.snap.zst" {
		t.Fatalf("snapshot=%q seq=%d err=%v", snap, seq, err)
	}
	if d, err := rd.Meta(ctx, "catalog_digest"); err != nil || d != cats.Digest() {
		t.Fatalf("catalog digest=%q err=%v", d, err)
	}
}
