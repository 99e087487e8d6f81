package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stitcher/cli/reader"
	"github.com/pithecene-io/stitcher/cli/render"
	"github.com/pithecene-io/stitcher/cli/tui"
	"github.com/pithecene-io/stitcher/lode"
)

const reportQueryTimeout = 30 * time.Second

// ReportCommand returns the report command.
// Report reads stored job results back from a Lode dataset.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Show the latest stored job report",
		Flags: append(append(TUIReadOnlyFlags(), storageReadFlags()...),
			&cli.StringFlag{
				Name:  "job-id",
				Usage: "Read the report of this job (default: latest job)",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "List the stored telemetry events of --job-id instead",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Show the stored metrics snapshot instead",
			},
		),
		Action: reportAction,
	}
}

func reportAction(c *cli.Context) error {
	s := storageChoice{
		dataset:   c.String("storage-dataset"),
		backend:   c.String("storage-backend"),
		path:      c.String("storage-path"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	}
	if s.path == "" {
		return cli.Exit("--storage-path is required", exitFailed)
	}
	jobID := c.String("job-id")
	if c.Bool("events") && jobID == "" {
		return cli.Exit("--events requires --job-id", exitFailed)
	}
	if c.Bool("events") && c.Bool("metrics") {
		return cli.Exit("--events and --metrics are mutually exclusive", exitFailed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportQueryTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("events") {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported with --events", exitFailed)
		}
		records, err := lode.QueryJobEvents(ctx, ds, jobID)
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}
		return r.Render(reader.ParseEventRecords(records))
	}

	if c.Bool("metrics") {
		raw, err := lode.QueryLatestMetrics(ctx, ds, jobID)
		if errors.Is(err, lode.ErrNoMetricsFound) {
			return cli.Exit("no job metrics found", exitFailed)
		}
		if err != nil {
			return fmt.Errorf("failed to read metrics: %w", err)
		}
		rec, err := reader.ParseMetricsRecord(raw)
		if err != nil {
			return fmt.Errorf("malformed metrics record: %w", err)
		}
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported with --metrics", exitFailed)
		}
		return r.Render(rec)
	}

	record, err := lode.QueryLatestReport(ctx, ds, jobID)
	if errors.Is(err, lode.ErrNoReportFound) {
		return cli.Exit("no job report found", exitFailed)
	}
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	if c.Bool("tui") {
		if !isTTY(os.Stdout) {
			fmt.Fprint(os.Stdout, tui.RenderInspectStatic("inspect_report", record.Report))
			return nil
		}
		return r.RenderTUI("inspect_report", record.Report)
	}
	return r.Render(record)
}

// buildReadDataset creates a Lode Dataset for reading based on CLI flags.
func buildReadDataset(ctx context.Context, s storageChoice) (lodelibrary.Dataset, error) {
	switch s.backend {
	case "fs":
		return lode.NewReadDatasetFS(s.dataset, s.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, s.dataset, s3Config(s))
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}
