package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var app = &cli.App{
	Name:  "parkd",
	Usage: "authoritative park simulation: host, join, replay and inspect parks",
	Flags: []cli.Flag{
		envFileFlag,
		parkFlag,
		configDirFlag,
		dataDirFlag,
		logLevelFlag,
	},
	Commands: []*cli.Command{
		commandServe,
		commandJoin,
		commandReplay,
		commandInspect,
	},
}

// Flags shared by every command. Each overrides its PARKCRAFT_* variable.
var (
	envFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Usage: "dotenv file to load before reading the environment",
		Value: ".env",
	}
	parkFlag = &cli.StringFlag{
		Name:  "park",
		Usage: "park id",
	}
	configDirFlag = &cli.StringFlag{
		Name:  "configs",
		Usage: "directory holding tuning.yaml and the catalogs",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "runtime data directory",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "panic, fatal, error, warn, info, debug or trace",
	}
)

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
