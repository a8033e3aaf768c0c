package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	persistlog "parkcraft.ai/internal/persistence/log"
	"parkcraft.ai/internal/persistence/redisstream"
	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/replay"
)

var commandReplay = &cli.Command{
	Name:  "replay",
	Usage: "re-execute a recorded park and check it against the log",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "snapshot", Usage: "start from this snapshot instead of a fresh park"},
		&cli.BoolFlag{Name: "redis", Usage: "read entries from the redis stream instead of the log files"},
		&cli.BoolFlag{Name: "stop-on-mismatch", Usage: "stop at the first divergence"},
	},
	Action: runReplay,
}

func runReplay(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cats, tune, err := loadRules(cfg)
	if err != nil {
		return err
	}

	var (
		start     = freshPark(tune)
		after     uint32
		startTick uint32
	)
	if p := c.String("snapshot"); p != "" {
		snap, err := snapshot.ReadSnapshot(p)
		if err != nil {
			return err
		}
		if start, err = snap.Restore(); err != nil {
			return err
		}
		after, startTick = snap.Header.Seq, snap.Header.Tick
	}

	var entries []dispatch.ReplayEntry
	if c.Bool("redis") {
		if cfg.RedisAddr == "" {
			return fmt.Errorf("--redis needs PARKCRAFT_REDIS_ADDR")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		entries, err = readStream(c.Context, rdb, redisstream.StreamKey(cfg.ParkID), after)
	} else {
		entries, err = persistlog.ReadReplay(parkDir(cfg))
	}
	if err != nil {
		return err
	}

	d, err := newDispatcher(dispatch.ModeReplay, action.ServerActor(), cats, tune, start)
	if err != nil {
		return err
	}
	d.Resume(after, startTick)
	rep, err := replay.Run(c.Context, d, entries, replay.Options{After: after, StopOnMismatch: c.Bool("stop-on-mismatch")})
	if err != nil {
		return err
	}
	printReport(rep, start)
	if !rep.OK() {
		return fmt.Errorf("replay diverged in %d places", len(rep.Mismatches))
	}
	return nil
}

// readStream pages through the redis mirror from seq after.
func readStream(ctx context.Context, rdb redis.UniversalClient, stream string, after uint32) ([]dispatch.ReplayEntry, error) {
	var out []dispatch.ReplayEntry
	for {
		page, err := redisstream.ReadAfter(ctx, rdb, stream, after, 1000)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
		after = page[len(page)-1].Seq
	}
}

func printReport(rep replay.Report, s *park.State) {
	summary := tablewriter.NewWriter(os.Stdout)
	summary.SetHeader([]string{"applied", "failed", "skipped", "last seq", "last tick", "rides", "cash", "digest"})
	summary.Append([]string{
		strconv.Itoa(rep.Applied),
		strconv.Itoa(rep.Failed),
		strconv.Itoa(rep.Skipped),
		strconv.FormatUint(uint64(rep.LastSeq), 10),
		strconv.FormatUint(uint64(rep.LastTick), 10),
		strconv.Itoa(s.RideCount()),
		s.Cash().String(),
		rep.Digest,
	})
	summary.Render()

	if rep.OK() {
		return
	}
	mm := tablewriter.NewWriter(os.Stdout)
	mm.SetHeader([]string{"seq", "field", "recorded", "replayed"})
	for _, m := range rep.Mismatches {
		mm.Append([]string{strconv.FormatUint(uint64(m.Seq), 10), m.Field, m.Want, m.Got})
	}
	mm.Render()
}
