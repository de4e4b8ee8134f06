package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/teeline/cli/reader"
	"github.com/pithecene-io/teeline/cli/render"
)

// DumpCommand returns the dump command.
// It decodes stored segments, either local .ssef files given as arguments
// or the newest segments of the configured store.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Decode frames from stored segments",
		ArgsUsage: "[file.ssef ...]",
		Flags: append(append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "last",
				Usage: "Only the newest N segments of the store (0 for all)",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Write frame payloads to stdout unchanged instead of rendering",
			},
		), storageFlags()...),
		Action: dumpAction,
	}
}

// segment is one stored body to decode.
type segment struct {
	path string
	body []byte
}

func dumpAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for dump command", exitConfig)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	var segments []segment
	if c.NArg() > 0 {
		segments, err = readLocalSegments(c.Args().Slice())
	} else {
		segments, err = readStoredSegments(c)
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("raw") {
		w := r.Writer()
		for _, s := range segments {
			for _, p := range reader.Payloads(s.body) {
				if _, err := w.Write(p); err != nil {
					return cli.Exit(err.Error(), exitFailure)
				}
			}
		}
		return nil
	}

	views := make([]*reader.SegmentView, 0, len(segments))
	for _, s := range segments {
		views = append(views, reader.ParseSegment(s.path, s.body))
	}

	if r.Format() != render.FormatTable {
		return r.Render(views)
	}
	for _, v := range views {
		fmt.Fprintf(r.Writer(), "%s (%d bytes, %d frames, %d trailing)\n", v.Path, v.Bytes, len(v.Frames), v.Trailing)
		if err := r.Render(v); err != nil {
			return err
		}
	}
	return nil
}

func readLocalSegments(paths []string) ([]segment, error) {
	out := make([]segment, 0, len(paths))
	for _, p := range paths {
		body, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, segment{path: p, body: body})
	}
	return out, nil
}

func readStoredSegments(c *cli.Context) ([]segment, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	store, err := openSegments(c, cfg)
	if err != nil {
		return nil, err
	}

	paths, err := store.List(c.Context)
	if err != nil {
		return nil, err
	}
	if last := c.Int("last"); last > 0 && len(paths) > last {
		paths = paths[len(paths)-last:]
	}

	out := make([]segment, 0, len(paths))
	for _, p := range paths {
		body, err := store.Read(c.Context, p)
		if err != nil {
			return nil, err
		}
		out = append(out, segment{path: p, body: body})
	}
	return out, nil
}
