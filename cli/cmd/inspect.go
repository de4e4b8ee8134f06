package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/teeline/cli/config"
	"github.com/pithecene-io/teeline/cli/reader"
	"github.com/pithecene-io/teeline/cli/render"
	"github.com/pithecene-io/teeline/cli/tui"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect reads ring snapshots and counters from a running aggregator.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a running aggregator (ring, rings, stats)",
		Subcommands: []*cli.Command{
			{
				Name:      "ring",
				Usage:     "Show one source's ring, oldest entry first",
				ArgsUsage: "<source>",
				Flags:     inspectFlags(),
				Action:    inspectRingAction,
			},
			{
				Name:   "rings",
				Usage:  "Show every source's ring",
				Flags:  inspectFlags(),
				Action: inspectRingsAction,
			},
			{
				Name:   "stats",
				Usage:  "Show batching and delivery counters",
				Flags:  inspectFlags(),
				Action: inspectStatsAction,
			},
		},
	}
}

func inspectFlags() []cli.Flag {
	return append(ReadOnlyFlags(), &cli.StringFlag{
		Name:  "debug-url",
		Usage: "Debug RPC endpoint of the aggregator",
		Value: "http://" + config.DefaultDebugAddr + "/rpc",
	})
}

// openReader connects to the debug RPC named by flags or config.
func openReader(c *cli.Context) (reader.Reader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	var fromConfig string
	if cfg.Debug.Listen != "" {
		fromConfig = "http://" + cfg.Debug.Listen + "/rpc"
	}
	return reader.NewRPCReader(stringValue(c, "debug-url", fromConfig)), nil
}

// inspect fetches one view and renders it, or shows it in the TUI.
func inspect(c *cli.Context, viewType string, fetch func(reader.Reader) (any, error)) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	rd, err := openReader(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = rd.Close() }()

	data, err := fetch(rd)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if c.Bool("tui") {
		return r.RenderTUI(viewType, data)
	}
	return r.Render(data)
}

func inspectRingAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("source required", exitConfig)
	}
	source := c.Args().First()
	return inspect(c, tui.ViewRing, func(rd reader.Reader) (any, error) {
		return rd.Ring(c.Context, source)
	})
}

func inspectRingsAction(c *cli.Context) error {
	return inspect(c, tui.ViewRings, func(rd reader.Reader) (any, error) {
		return rd.Rings(c.Context)
	})
}

func inspectStatsAction(c *cli.Context) error {
	return inspect(c, tui.ViewStats, func(rd reader.Reader) (any, error) {
		return rd.Stats(c.Context)
	})
}
