package redisstream

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"parkcraft.ai/internal/sim/dispatch"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestPublisher_RoundTrip(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	key := StreamKey("alpha")
	p := NewPublisher(client, key, 0)

	in := []dispatch.ReplayEntry{
		{Seq: 1, Tick: 2, Kind: 3, KindName: "ride_create", Player: 1, Params: []byte{0, 3, 0, 0, 0, 1, 0xff}, Status: "ok"},
		{Seq: 2, Tick: 2, Kind: 1, KindName: "track_place", Player: 1, Params: []byte{0, 1}, Status: "ok", Cost: 1100, Digest: "abc"},
		{Seq: 5, Tick: 8, Kind: 1, KindName: "track_place", Player: 2, Params: []byte{9}, Status: "precondition_failed", Message: "tile_occupied"},
	}
	for _, e := range in {
		require.NoError(t, p.Record(e))
	}

	all, err := ReadAfter(ctx, client, key, 0, 100)
	require.NoError(t, err)
	require.Equal(t, in, all)

	tail, err := ReadAfter(ctx, client, key, 2, 100)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, uint32(5), tail[0].Seq)
}

func TestPublisher_RejectsRepublishedSeq(t *testing.T) {
	client, _ := setupTestRedis(t)
	p := NewPublisher(client, StreamKey("alpha"), 0)
	require.NoError(t, p.Record(dispatch.ReplayEntry{Seq: 3, Params: []byte{1}}))
	require.Error(t, p.Record(dispatch.ReplayEntry{Seq: 3, Params: []byte{1}}))
	require.Error(t, p.Record(dispatch.ReplayEntry{Seq: 2, Params: []byte{1}}))
}

func TestHealthChecker(t *testing.T) {
	client, mr := setupTestRedis(t)
	h := NewHealthChecker(client)
	require.NoError(t, h.Check(context.Background()))
	mr.Close()
	require.Error(t, h.Check(context.Background()))
}
