package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"parkcraft.ai/internal/config"
	"parkcraft.ai/internal/persistence/archive"
	"parkcraft.ai/internal/persistence/indexdb"
	persistlog "parkcraft.ai/internal/persistence/log"
	"parkcraft.ai/internal/persistence/r2s3"
	"parkcraft.ai/internal/persistence/redisstream"
	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/platform/otel"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/transport/observer"
	"parkcraft.ai/internal/transport/ws"
)

var commandServe = &cli.Command{
	Name:  "serve",
	Usage: "host a park as the authority",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "listen", Usage: "http listen address"},
		&cli.BoolFlag{Name: "disable-index", Usage: "do not maintain the sqlite index"},
	},
	Action: serve,
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.Bool("disable-index") {
		cfg.IndexEnabled = false
	}
	log := logrus.WithFields(logrus.Fields{"component": "parkd", "park": cfg.ParkID})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, otel.Options{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: cfg.OtelServiceName,
		ParkID:      cfg.ParkID,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	cats, tune, err := loadRules(cfg)
	if err != nil {
		return err
	}
	dir := parkDir(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	world, seq, tick, err := recoverPark(ctx, dir, cats, tune)
	if err != nil {
		return err
	}
	d, err := newDispatcher(dispatch.ModeAuthority, action.ServerActor(), cats, tune, world)
	if err != nil {
		return err
	}
	d.ReplaceWorld(world, seq, tick)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.SetMetrics(dispatch.NewMetrics(registry))

	replayLog := persistlog.NewReplayLogger(dir)
	defer replayLog.Close()
	d.AddSink(replayLog)
	rejectLog := persistlog.NewRejectLogger(dir)
	defer rejectLog.Close()
	d.AddRejectObserver(rejectLog)

	var idx *indexdb.SQLiteIndex
	if cfg.IndexEnabled {
		idx, err = indexdb.OpenSQLite(indexPath(cfg))
		if err != nil {
			return err
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cfg.ConfigDir, cats, tune); err != nil {
			log.WithError(err).Warn("index: upsert catalogs")
		}
		d.AddSink(idx)
		d.AddRejectObserver(idx)
		registry.MustRegister(indexCollector{idx})
	}

	var redisHealth *redisstream.HealthChecker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			MaxRetries:  3,
			DialTimeout: 5 * time.Second,
		})
		defer rdb.Close()
		redisHealth = redisstream.NewHealthChecker(rdb)
		if err := redisHealth.Check(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable at startup; entries will be retried per action")
		}
		d.AddSink(redisstream.NewPublisher(rdb, redisstream.StreamKey(cfg.ParkID), cfg.RedisMaxLen))
	}

	var mirror *r2s3.Mirror
	if cfg.MirrorEndpoint != "" {
		client, err := r2s3.New(r2s3.Options{
			Endpoint:  cfg.MirrorEndpoint,
			Bucket:    cfg.MirrorBucket,
			Region:    cfg.MirrorRegion,
			AccessKey: cfg.MirrorAccessKey,
			SecretKey: cfg.MirrorSecretKey,
		})
		if err != nil {
			return err
		}
		mirror = r2s3.NewMirror(client, cfg.DataDir, cfg.MirrorPrefix, 2, 256)
		defer mirror.Close()
	}
	snaps := &snapshotter{d: d, cfg: cfg, idx: idx, mirror: mirror}

	srv := ws.NewServer(d, ws.NewRoster(tune.DefaultGroup, tune.Players), ws.ServerOptions{
		ParkID:        cfg.ParkID,
		CatalogDigest: cats.Digest(),
	})

	feed := observer.NewServer(d, cfg.ParkID)
	d.AddSink(feed)
	d.AddRejectObserver(feed)

	mux := http.NewServeMux()
	mux.Handle("/v1/session", srv.Handler())
	mux.Handle("/v1/observer/ws", feed.WSHandler())
	mux.Handle("/v1/observer/bootstrap", feed.BootstrapHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h := health{
			Park:    cfg.ParkID,
			Tick:    d.Tick(),
			LastSeq: d.LastSeq(),
			Digest:  d.Digest(),
			Peers:   srv.Peers(),
			Pending: d.Pending(),
			Redis:   "disabled",
		}
		status := http.StatusOK
		if redisHealth != nil {
			h.Redis = "ok"
			if err := redisHealth.Check(r.Context()); err != nil {
				h.Redis = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if idx != nil {
			st := idx.Stats()
			h.Index = &st
		}
		if mirror != nil {
			st := mirror.Stats()
			h.Mirror = &st
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(h)
	})
	httpSrv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("listening on %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := d.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		snaps.loop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.Close()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	err = g.Wait()

	if n := drainQueue(d); n > 0 {
		log.Infof("executed %d queued actions before shutdown", n)
	}
	if path, snap, serr := snaps.take(); serr != nil {
		log.WithError(serr).Error("final snapshot failed")
	} else {
		log.WithFields(logrus.Fields{"path": path, "seq": snap.Header.Seq}).Info("final snapshot written")
	}
	return err
}

type health struct {
	Park    string         `json:"park"`
	Tick    uint32         `json:"tick"`
	LastSeq uint32         `json:"last_seq"`
	Digest  string         `json:"digest"`
	Peers   int            `json:"peers"`
	Pending int            `json:"pending"`
	Redis   string         `json:"redis"`
	Index   *indexdb.Stats `json:"index,omitempty"`
	Mirror  *r2s3.Stats    `json:"mirror,omitempty"`
}

type snapshotter struct {
	d      *dispatch.Dispatcher
	cfg    *config.Config
	idx    *indexdb.SQLiteIndex
	mirror *r2s3.Mirror
}

// take writes a snapshot, indexes and mirrors it, and archives old ones.
func (s *snapshotter) take() (string, snapshot.SnapshotV1, error) {
	dir := parkDir(s.cfg)
	path, snap, err := checkpoint(s.d, s.cfg.ParkID, dir)
	if err != nil {
		return "", snap, err
	}
	if s.idx != nil {
		s.idx.RecordSnapshot(path, snap)
	}
	if s.mirror != nil {
		s.mirror.Enqueue(path)
	}
	if archived, err := archive.Retain(dir, s.cfg.SnapshotKeep, time.Now()); err != nil {
		logrus.WithError(err).Warn("snapshot retention failed")
	} else if len(archived) > 0 {
		logrus.Debugf("archived %d snapshots", len(archived))
	}
	return path, snap, nil
}

// loop snapshots every cfg.SnapshotEvery ticks that saw a new action.
func (s *snapshotter) loop(ctx context.Context) {
	if s.cfg.SnapshotEvery == 0 {
		return
	}
	every := time.Duration(s.cfg.SnapshotEvery) * time.Second / time.Duration(s.d.TickRateHz())
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	last := s.d.LastSeq()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if s.d.LastSeq() == last {
			continue
		}
		path, snap, err := s.take()
		if err != nil {
			logrus.WithError(err).Error("snapshot failed")
			continue
		}
		last = snap.Header.Seq
		logrus.WithFields(logrus.Fields{"path": path, "seq": snap.Header.Seq, "tick": snap.Header.Tick}).Debug("snapshot written")
	}
}

// indexCollector exports the index writer's queue and drop counters.
type indexCollector struct{ idx *indexdb.SQLiteIndex }

var (
	indexQueueDesc = prometheus.NewDesc("parkcraft_index_queue_depth", "Index writes waiting for the sqlite writer.", nil, nil)
	indexDropDesc  = prometheus.NewDesc("parkcraft_index_dropped_total", "Index writes dropped on a full queue.", []string{"kind"}, nil)
)

func (c indexCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- indexQueueDesc
	ch <- indexDropDesc
}

func (c indexCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.idx.Stats()
	ch <- prometheus.MustNewConstMetric(indexQueueDesc, prometheus.GaugeValue, float64(st.QueueDepth))
	ch <- prometheus.MustNewConstMetric(indexDropDesc, prometheus.CounterValue, float64(st.DropActionTotal), "action")
	ch <- prometheus.MustNewConstMetric(indexDropDesc, prometheus.CounterValue, float64(st.DropRejectTotal), "reject")
	ch <- prometheus.MustNewConstMetric(indexDropDesc, prometheus.CounterValue, float64(st.DropSnapshotTotal), "snapshot")
}
