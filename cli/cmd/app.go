package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/teeline/types"
)

// NewApp assembles the teeline CLI.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "teeline",
		Usage:   "Capture streaming HTTP responses and relay them to a local sink",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			AggregateCommand(),
			IngestCommand(),
			CaptureCommand(),
			InspectCommand(),
			DumpCommand(),
			VersionCommand(commit),
		},
	}
}
