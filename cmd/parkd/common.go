package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"parkcraft.ai/internal/config"
	persistlog "parkcraft.ai/internal/persistence/log"
	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/action/actions"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/permission"
	"parkcraft.ai/internal/sim/replay"
	"parkcraft.ai/internal/sim/tuning"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(envFileFlag.Name))
	if err != nil {
		return nil, err
	}
	if c.IsSet(parkFlag.Name) {
		cfg.ParkID = c.String(parkFlag.Name)
	}
	if c.IsSet(configDirFlag.Name) {
		cfg.ConfigDir = c.String(configDirFlag.Name)
	}
	if c.IsSet(dataDirFlag.Name) {
		cfg.DataDir = c.String(dataDirFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = c.String(logLevelFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ConfigureLogging()
	return cfg, nil
}

func parkDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "parks", cfg.ParkID)
}

func indexPath(cfg *config.Config) string {
	return filepath.Join(parkDir(cfg), "index.sqlite")
}

func loadRules(cfg *config.Config) (*catalogs.Catalogs, tuning.Tuning, error) {
	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return nil, tuning.Tuning{}, fmt.Errorf("load catalogs: %w", err)
	}
	tune, err := tuning.Load(filepath.Join(cfg.ConfigDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, tuning.Tuning{}, fmt.Errorf("load tuning: %w", err)
		}
		logrus.Warnf("tuning.yaml not found in %s; using defaults", cfg.ConfigDir)
		tune = tuning.Defaults()
	}
	return cats, tune, nil
}

// freshPark is a new park with every tile owned.
func freshPark(tune tuning.Tuning) *park.State {
	s := park.NewState(tune.Limits(), tune.Rules, tune.StartingCash)
	s.SetOwned(park.TileXY{}, park.TileXY{X: tune.Map.Width - 1, Y: tune.Map.Height - 1}, true)
	return s
}

// loadPark resumes from the newest snapshot under dir, or starts fresh.
func loadPark(dir string, tune tuning.Tuning) (s *park.State, seq, tick uint32, err error) {
	path, err := snapshot.Latest(dir)
	if err != nil {
		return nil, 0, 0, err
	}
	if path == "" {
		return freshPark(tune), 0, 0, nil
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	s, err = snap.Restore()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{"path": path, "seq": snap.Header.Seq, "tick": snap.Header.Tick}).Info("resumed from snapshot")
	return s, snap.Header.Seq, snap.Header.Tick, nil
}

// recoverPark loads the newest snapshot and replays the log written after
// it, so actions executed after the last snapshot survive a crash.
func recoverPark(ctx context.Context, dir string, cats *catalogs.Catalogs, tune tuning.Tuning) (*park.State, uint32, uint32, error) {
	s, seq, tick, err := loadPark(dir, tune)
	if err != nil {
		return nil, 0, 0, err
	}
	entries, err := persistlog.ReadReplay(dir)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read replay log: %w", err)
	}
	if len(entries) == 0 || entries[len(entries)-1].Seq <= seq {
		return s, seq, tick, nil
	}
	rd, err := newDispatcher(dispatch.ModeReplay, action.ServerActor(), cats, tune, s)
	if err != nil {
		return nil, 0, 0, err
	}
	rd.Resume(seq, tick)
	rep, err := replay.Run(ctx, rd, entries, replay.Options{After: seq, StopOnMismatch: true})
	if err != nil {
		return nil, 0, 0, err
	}
	if !rep.OK() {
		return nil, 0, 0, fmt.Errorf("replay log diverges from snapshot at %s", rep.Mismatches[0])
	}
	logrus.Infof("recovered %d logged actions after seq %d", rep.Applied+rep.Failed, seq)
	return s, rep.LastSeq, rep.LastTick, nil
}

func newDispatcher(mode dispatch.Mode, actor action.Actor, cats *catalogs.Catalogs, tune tuning.Tuning, w park.World) (*dispatch.Dispatcher, error) {
	reg, err := actions.NewRegistry(cats)
	if err != nil {
		return nil, err
	}
	checker, err := permission.FromTuning(tune)
	if err != nil {
		return nil, err
	}
	cfg := dispatch.ConfigFromTuning(mode, tune)
	cfg.Actor = actor
	cfg.RecordDigest = true
	return dispatch.New(cfg, w, reg, checker)
}

// checkpoint writes a snapshot of the park after the last executed action.
func checkpoint(d *dispatch.Dispatcher, parkID, dir string) (string, snapshot.SnapshotV1, error) {
	st, err := d.Checkpoint()
	if err != nil {
		return "", snapshot.SnapshotV1{}, err
	}
	snap := snapshot.Build(parkID, st.AppliedSeq, st.Tick, st.Digest, st.Park)
	path := snapshot.PathFor(dir, st.AppliedSeq)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", snapshot.SnapshotV1{}, err
	}
	return path, snap, nil
}

// drainQueue executes every sealed action still queued. Peers already hold
// those frames, so the last snapshot must include them.
func drainQueue(d *dispatch.Dispatcher) int {
	n := 0
	for {
		ran := d.ProcessQueue()
		if ran == 0 {
			return n
		}
		n += ran
	}
}
