package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"parkcraft.ai/internal/persistence/indexdb"
)

var commandInspect = &cli.Command{
	Name:  "inspect",
	Usage: "summarize a park from its sqlite index",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "player", Usage: "only list this player's actions"},
		&cli.IntFlag{Name: "limit", Usage: "how many actions to list, oldest first", Value: 20},
	},
	Action: inspect,
}

func inspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	path := indexPath(cfg)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no index for park %s: %w", cfg.ParkID, err)
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	ctx := c.Context

	digest, err := r.Meta(ctx, "catalog_digest")
	if err != nil {
		return err
	}
	rejects, err := r.RejectCount(ctx)
	if err != nil {
		return err
	}
	snapPath, snapSeq, err := r.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("park %s  catalogs %s  rejects %d\n", cfg.ParkID, digest, rejects)
	if snapPath != "" {
		fmt.Printf("latest snapshot %s (seq %d)\n", snapPath, snapSeq)
	}

	kinds, err := r.ByKind(ctx)
	if err != nil {
		return err
	}
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"kind", "status", "count", "cost"})
	for _, k := range kinds {
		t.Append([]string{k.KindName, k.Status, strconv.FormatInt(k.Count, 10), strconv.FormatInt(k.Cost, 10)})
	}
	t.Render()

	players, err := r.ByPlayer(ctx)
	if err != nil {
		return err
	}
	t = tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"player", "actions", "spent", "last tick"})
	for _, p := range players {
		t.Append([]string{
			strconv.FormatUint(uint64(p.Player), 10),
			strconv.FormatInt(p.Actions, 10),
			strconv.FormatInt(p.Cost, 10),
			strconv.FormatUint(uint64(p.LastTick), 10),
		})
	}
	t.Render()

	rows, err := r.Actions(ctx, uint32(c.Uint("player")), c.Int("limit"))
	if err != nil {
		return err
	}
	t = tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"seq", "tick", "kind", "player", "status", "message", "cost"})
	for _, a := range rows {
		t.Append([]string{
			strconv.FormatUint(uint64(a.Seq), 10),
			strconv.FormatUint(uint64(a.Tick), 10),
			a.KindName,
			strconv.FormatUint(uint64(a.Player), 10),
			a.Status,
			a.Message,
			strconv.FormatInt(a.Cost, 10),
		})
	}
	t.Render()
	return nil
}
