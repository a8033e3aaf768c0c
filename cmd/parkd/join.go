package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/transport/ws"
)

var commandJoin = &cli.Command{
	Name:  "join",
	Usage: "join an authority as a participant and mirror its park",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "authority", Usage: "authority websocket url"},
		&cli.StringFlag{Name: "name", Usage: "player name"},
		&cli.DurationFlag{Name: "status-every", Usage: "how often to log the mirrored state", Value: 10 * time.Second},
	},
	Action: join,
}

func join(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("authority") {
		cfg.AuthorityURL = c.String("authority")
	}
	if c.IsSet("name") {
		cfg.PlayerName = c.String("name")
	}
	cats, tune, err := loadRules(cfg)
	if err != nil {
		return err
	}

	// The park is replaced by the authority's snapshot on join.
	placeholder := park.NewState(tune.Limits(), tune.Rules, 0)
	d, err := newDispatcher(dispatch.ModeParticipant, action.Actor{Kind: action.ActorHuman}, cats, tune, placeholder)
	if err != nil {
		return err
	}
	client := ws.NewClient(d, ws.ClientOptions{
		URL:           cfg.AuthorityURL,
		PlayerName:    cfg.PlayerName,
		CatalogDigest: cats.Digest(),
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		if err := client.WaitReady(gctx); err != nil {
			return err
		}
		return d.Run(gctx)
	})
	g.Go(func() error {
		t := time.NewTicker(c.Duration("status-every"))
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				logrus.WithFields(logrus.Fields{
					"tick":    d.Tick(),
					"seq":     d.LastSeq(),
					"pending": d.Pending(),
					"digest":  d.Digest(),
				}).Info("mirroring")
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
