// Package cmd provides CLI commands for the stitcher binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stitcher/lode"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (info, report).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (info, report only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// storageReadFlags locate an existing dataset.
func storageReadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID", Value: lode.DefaultDataset},
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3", Value: "fs"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint URL (MinIO, R2)"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force path-style S3 addressing"},
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	return isTTY(os.Stderr)
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
