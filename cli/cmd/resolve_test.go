package cmd

import (
	"flag"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues maps flag names to their string values. All listed flags are
// registered and marked as explicitly set (c.IsSet returns true).
// defaultFlags maps flag names to default values (not explicitly set).
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}

	// Only set the flagValues (not defaults) so c.IsSet works
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"policy": "buffered"}, nil)
	got := resolveString(c, "policy", "streaming")
	if got != "buffered" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"policy": "strict"})
	got := resolveString(c, "policy", "streaming")
	if got != "streaming" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_FlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"policy": "strict"})
	got := resolveString(c, "policy", "")
	if got != "strict" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestResolveInt(t *testing.T) {
	newCtx := func(set bool) *cli.Context {
		app := cli.NewApp()
		app.Flags = []cli.Flag{&cli.IntFlag{Name: "buffer-events"}}
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Int("buffer-events", 0, "")
		if set {
			_ = fs.Set("buffer-events", "500")
		}
		return cli.NewContext(app, fs, nil)
	}

	if got := resolveInt(newCtx(true), "buffer-events", 1000); got != 500 {
		t.Errorf("CLI set: got %d, want 500", got)
	}
	if got := resolveInt(newCtx(false), "buffer-events", 1000); got != 1000 {
		t.Errorf("config fallback: got %d, want 1000", got)
	}
}

func TestResolveFloat64(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.Float64Flag{Name: "speedup"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Float64("speedup", 0, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveFloat64(c, "speedup", 8); got != 8 {
		t.Errorf("config fallback: got %v, want 8", got)
	}

	_ = fs.Set("speedup", "2.5")
	if got := resolveFloat64(c, "speedup", 8); got != 2.5 {
		t.Errorf("CLI set: got %v, want 2.5", got)
	}
}

func TestResolveBool_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "sync"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("sync", false, "")
	_ = fs.Set("sync", "false")
	c := cli.NewContext(app, fs, nil)

	// An explicit --sync=false overrides sync_mode: true.
	if resolveBool(c, "sync", true) {
		t.Error("expected explicit CLI false to win")
	}
}

func TestResolveBool_ConfigFallback(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "sync"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("sync", false, "")
	c := cli.NewContext(app, fs, nil)

	if !resolveBool(c, "sync", true) {
		t.Error("expected config true when flag unset")
	}
}

func TestResolveDuration(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "tick-rate", Value: time.Millisecond}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("tick-rate", time.Millisecond, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveDuration(c, "tick-rate", 0); got != time.Millisecond {
		t.Errorf("flag default: got %v, want 1ms", got)
	}
	if got := resolveDuration(c, "tick-rate", 2*time.Millisecond); got != 2*time.Millisecond {
		t.Errorf("config fallback: got %v, want 2ms", got)
	}

	_ = fs.Set("tick-rate", "500us")
	if got := resolveDuration(c, "tick-rate", 2*time.Millisecond); got != 500*time.Microsecond {
		t.Errorf("CLI set: got %v, want 500us", got)
	}
}
