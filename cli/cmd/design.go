package cmd

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stitcher/cli/config"
	"github.com/pithecene-io/stitcher/cli/render"
	"github.com/pithecene-io/stitcher/cli/tui"
	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/gcode"
	"github.com/pithecene-io/stitcher/iox"
	"github.com/pithecene-io/stitcher/runtime"
	"github.com/pithecene-io/stitcher/types"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "Path to stitcher.yaml (supplies the Tajima palette and feedrate)",
}

// RenderCommand returns the render command.
// Render converts a design to g-code without touching the machine.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Write a design as relative-mode g-code",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (default: stdout)",
			},
			&cli.Float64Flag{
				Name:  "feedrate",
				Usage: "Feedrate in mm/min (default: machine.feedrate or 4000)",
			},
		},
		Action: renderAction,
	}
}

// InfoCommand returns the info command.
// Info reports the header metadata of a design file.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show design metadata",
		ArgsUsage: "<file>",
		Flags:     append(TUIReadOnlyFlags(), configFlag),
		Action:    infoAction,
	}
}

// openDesign opens the file named by the first argument, using the
// optional config for the Tajima palette.
func openDesign(c *cli.Context) (*codec.File, *config.Config, error) {
	if c.NArg() < 1 {
		return nil, nil, cli.Exit("design file required", exitFailed)
	}

	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, cli.Exit(err.Error(), exitFailed)
		}
		cfg = loaded
	}

	f, err := codec.OpenFile(c.Args().First(), codec.Formats(cfg.Machine.TajimaPalette)...)
	if err != nil {
		return nil, nil, cli.Exit(fmt.Sprintf("cannot open design: %v", err), runtime.ExitCodeForOpenError(err))
	}
	return f, cfg, nil
}

func renderAction(c *cli.Context) error {
	f, cfg, err := openDesign(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(f)

	feedrate := resolveFloat64(c, "feedrate", cfg.Machine.Settings().Feedrate)

	var out io.Writer = os.Stdout
	if path := c.String("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer iox.DiscardClose(file)
		out = file
	}

	st, err := gcode.Render(out, f, feedrate)
	if err != nil {
		return cli.Exit(fmt.Sprintf("render failed: %v", err), exitFailed)
	}
	if st.Truncated {
		fmt.Fprintln(os.Stderr, "Warning: pattern ended on a partial record")
	}
	if c.String("output") != "" {
		fmt.Fprintf(os.Stderr, "wrote %d moves, %d jumps, %d trims, %d thread changes\n",
			st.Moves, st.Jumps, st.Trims, st.ThreadChanges)
	}
	return nil
}

// InfoResponse is the response for the info command.
type InfoResponse struct {
	File    string       `json:"file" yaml:"file"`
	Design  types.Design `json:"design" yaml:"design"`
	Threads []string     `json:"threads,omitempty" yaml:"threads,omitempty"`
}

func infoAction(c *cli.Context) error {
	f, _, err := openDesign(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(f)

	design := f.Design()
	if c.Bool("tui") {
		if !isTTY(os.Stdout) {
			fmt.Fprint(os.Stdout, tui.RenderInspectStatic("inspect_design", design))
			return nil
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.RenderTUI("inspect_design", design)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	resp := InfoResponse{File: c.Args().First(), Design: design}
	for i := uint32(0); i < design.Threads && i <= math.MaxUint8; i++ {
		resp.Threads = append(resp.Threads, f.ThreadName(types.ThreadColor(i)))
	}
	return r.Render(resp)
}
