package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"parkcraft.ai/internal/config"
	persistlog "parkcraft.ai/internal/persistence/log"
	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/action/actions"
	"parkcraft.ai/internal/sim/dispatch"
)

func TestRecoverPark_SnapshotPlusLogTail(t *testing.T) {
	cats, tune, err := loadRules(&config.Config{ConfigDir: "../../configs"})
	require.NoError(t, err)
	dir := t.TempDir()
	ctx := context.Background()

	d, err := newDispatcher(dispatch.ModeLocal, action.Actor{ID: 1, Kind: action.ActorHuman, Group: "builder"}, cats, tune, freshPark(tune))
	require.NoError(t, err)
	logger := persistlog.NewReplayLogger(dir)
	d.AddSink(logger)

	r, err := d.Execute(ctx, actions.NewRideCreate(cats, 1, "First"))
	require.NoError(t, err)
	require.True(t, r.OK(), r.String())
	path, snap, err := checkpoint(d, "p", dir)
	require.NoError(t, err)
	require.Equal(t, snapshot.PathFor(dir, 1), path)
	require.Equal(t, uint32(1), snap.Header.Seq)

	r, err = d.Execute(ctx, actions.NewRideCreate(cats, 1, "Second"))
	require.NoError(t, err)
	require.True(t, r.OK(), r.String())
	require.NoError(t, logger.Close())

	s, seq, _, err := recoverPark(ctx, dir, cats, tune)
	require.NoError(t, err)
	require.Equal(t, uint32(2), seq)
	require.Equal(t, 2, s.RideCount())
	require.Equal(t, d.Digest(), s.Digest())
}

func TestRecoverPark_FreshWhenEmpty(t *testing.T) {
	cats, tune, err := loadRules(&config.Config{ConfigDir: "../../configs"})
	require.NoError(t, err)

	s, seq, tick, err := recoverPark(context.Background(), t.TempDir(), cats, tune)
	require.NoError(t, err)
	require.Zero(t, seq)
	require.Zero(t, tick)
	require.Equal(t, tune.StartingCash, s.Cash())
}

func TestDrainQueue_FinalSnapshotHoldsEverySealedAction(t *testing.T) {
	cats, tune, err := loadRules(&config.Config{ConfigDir: "../../configs"})
	require.NoError(t, err)
	dir := t.TempDir()
	ctx := context.Background()

	d, err := newDispatcher(dispatch.ModeAuthority, action.ServerActor(), cats, tune, freshPark(tune))
	require.NoError(t, err)
	logger := persistlog.NewReplayLogger(dir)
	d.AddSink(logger)

	for _, name := range []string{"First", "Second"} {
		r := d.Submit(ctx, actions.NewRideCreate(cats, 1, name), nil)
		require.True(t, r.OK(), r.String())
	}
	st, err := d.Checkpoint()
	require.NoError(t, err)
	require.Len(t, st.Queued, 2)
	require.Zero(t, st.AppliedSeq)

	require.Equal(t, 2, drainQueue(d))
	require.Zero(t, drainQueue(d))

	_, snap, err := checkpoint(d, "p", dir)
	require.NoError(t, err)
	require.Equal(t, d.LastSeq(), snap.Header.Seq)
	require.Equal(t, uint32(2), snap.Header.Seq)
	st, err = d.Checkpoint()
	require.NoError(t, err)
	require.Empty(t, st.Queued)

	require.NoError(t, logger.Close())
	entries, err := persistlog.ReadReplay(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	s, seq, _, err := recoverPark(ctx, dir, cats, tune)
	require.NoError(t, err)
	require.Equal(t, uint32(2), seq)
	require.Equal(t, 2, s.RideCount())
}
