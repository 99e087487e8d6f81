package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stitcher/cli/render"
	"github.com/pithecene-io/stitcher/ipc"
)

// EventsCommand returns the events command.
// Events decodes a telemetry file written by `run --events-out`.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Decode a telemetry events file",
		ArgsUsage: "<file>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "type",
				Usage: "Only show events of this type (e.g. thread_change)",
			},
		),
		Action: eventsAction,
	}
}

func eventsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("events file required", exitFailed)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for events command
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for events command", exitFailed)
	}

	events, readErr := ipc.ReadFile(c.Args().First())
	if t := c.String("type"); t != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.Type) == t {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	if err := r.Render(events); err != nil {
		return err
	}
	if readErr != nil {
		return cli.Exit(fmt.Sprintf("events file damaged after %d events: %v", len(events), readErr), exitFailed)
	}
	return nil
}
