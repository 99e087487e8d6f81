package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stitcher/adapter"
	"github.com/pithecene-io/stitcher/adapter/redis"
	"github.com/pithecene-io/stitcher/adapter/webhook"
	"github.com/pithecene-io/stitcher/cli/config"
	"github.com/pithecene-io/stitcher/cli/tui"
	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/dispatch"
	"github.com/pithecene-io/stitcher/iox"
	"github.com/pithecene-io/stitcher/ipc"
	"github.com/pithecene-io/stitcher/lode"
	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/policy"
	"github.com/pithecene-io/stitcher/runtime"
	"github.com/pithecene-io/stitcher/types"
)

// Exit codes for `stitcher run`.
const (
	exitCompleted   = runtime.ExitCodeCompleted
	exitFailed      = runtime.ExitCodeFailed
	exitUnsupported = runtime.ExitCodeUnsupported
)

// progressBarWidth is the width of the plain-terminal progress bar.
const progressBarWidth = 30

// RunCommand returns the run command.
// This is the only command that drives the machine.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Stream a design file into the machine",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to stitcher.yaml (flags override config values)",
			},
			&cli.StringFlag{
				Name:  "job-id",
				Usage: "Job ID (default: generated UUID)",
			},
			// Machine flags
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Gate each stitch on a needle sensor pulse",
			},
			&cli.Float64Flag{
				Name:  "speedup",
				Usage: "Divide simulated machine time by this factor (0 = real time)",
			},
			&cli.DurationFlag{
				Name:  "tick-rate",
				Usage: "Foreground tick period",
				Value: runtime.DefaultTickRate,
			},
			// Telemetry flags
			&cli.StringFlag{
				Name:  "events-out",
				Usage: "Write framed telemetry events to this file",
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Ingestion policy: strict, buffered, streaming or noop",
				Value: string(policy.NameStrict),
			},
			&cli.IntFlag{
				Name:  "buffer-events",
				Usage: "Max buffered events (buffered policy)",
			},
			&cli.Int64Flag{
				Name:  "buffer-bytes",
				Usage: "Max buffer size in bytes (buffered policy)",
			},
			&cli.IntFlag{
				Name:  "flush-count",
				Usage: "Flush after N events (streaming policy)",
			},
			&cli.DurationFlag{
				Name:  "flush-interval",
				Usage: "Flush every interval (streaming policy)",
			},
			// Storage flags
			&cli.StringFlag{
				Name:  "storage-dataset",
				Usage: "Lode dataset ID",
				Value: lode.DefaultDataset,
			},
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Storage backend: fs or s3 (empty disables storage)",
			},
			&cli.StringFlag{
				Name:  "storage-path",
				Usage: "Storage path (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "storage-region",
				Usage: "AWS region for S3 backend (optional, uses default chain)",
			},
			&cli.StringFlag{
				Name:  "storage-endpoint",
				Usage: "Custom S3 endpoint URL (MinIO, R2)",
			},
			&cli.BoolFlag{
				Name:  "storage-s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion notification adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook endpoint or Redis URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as key=value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-attempt publish timeout (default per adapter)",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Publish retry attempts",
				Value: webhook.DefaultRetries,
			},
			// Output flags
			&cli.BoolFlag{
				Name:  "interactive",
				Usage: "Wait for Enter on each trim and thread change",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show a live progress view",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			&cli.StringFlag{
				Name:  "summary",
				Usage: "Write the JSON run summary to this path (- for stderr)",
			},
		},
		Action: runAction,
	}
}

// policyChoice holds parsed policy configuration.
type policyChoice struct {
	name          string
	maxEvents     int
	maxBytes      int64
	flushCount    int
	flushInterval time.Duration
}

// storageChoice holds parsed Lode storage configuration.
type storageChoice struct {
	dataset   string
	backend   string // "fs", "s3" or "" (disabled)
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

func (s storageChoice) enabled() bool {
	return s.backend != "" || s.path != ""
}

// adapterChoice holds parsed adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

func runAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("design file required: stitcher run <file>", exitFailed)
	}
	file := c.Args().First()

	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitFailed)
		}
		cfg = loaded
	}

	if c.Bool("tui") && c.Bool("interactive") {
		return cli.Exit("--tui and --interactive cannot be combined", exitFailed)
	}

	choice := policyChoice{
		name:          resolveString(c, "policy", cfg.Policy.Name),
		maxEvents:     resolveInt(c, "buffer-events", cfg.Policy.BufferEvents),
		maxBytes:      resolveInt64(c, "buffer-bytes", cfg.Policy.BufferBytes),
		flushCount:    resolveInt(c, "flush-count", cfg.Policy.FlushCount),
		flushInterval: resolveDuration(c, "flush-interval", cfg.Policy.FlushInterval.Duration),
	}
	if err := validatePolicyConfig(choice); err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}

	storage := storageChoice{
		dataset:   resolveString(c, "storage-dataset", cfg.Storage.Dataset),
		backend:   resolveString(c, "storage-backend", cfg.Storage.Backend),
		path:      resolveString(c, "storage-path", cfg.Storage.Path),
		region:    resolveString(c, "storage-region", cfg.Storage.Region),
		endpoint:  resolveString(c, "storage-endpoint", cfg.Storage.Endpoint),
		pathStyle: resolveBool(c, "storage-s3-path-style", cfg.Storage.S3PathStyle),
	}
	if err := validateStorageConfig(storage); err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}

	var ac *adapterChoice
	if adapterType := resolveString(c, "adapter", cfg.Adapter.Type); adapterType != "" {
		parsed, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			return cli.Exit(err.Error(), exitFailed)
		}
		ac = parsed
	}

	settings := cfg.Machine.Settings()
	settings.SyncMode = resolveBool(c, "sync", cfg.Machine.SyncMode)
	simCfg := cfg.Sim()
	simCfg.Speedup = resolveFloat64(c, "speedup", cfg.Runtime.Speedup)

	// Open the design before creating any output so an unsupported file
	// leaves nothing behind.
	design, err := codec.OpenFile(file, codec.Formats(cfg.Machine.TajimaPalette)...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open design: %v", err), runtime.ExitCodeForOpenError(err))
	}

	meta := types.JobMeta{
		JobID:  c.String("job-id"),
		File:   file,
		Format: design.Design().Format,
	}
	if meta.JobID == "" {
		meta.JobID = uuid.NewString()
	}

	logger := log.NewLogger(&meta)
	if c.Bool("tui") {
		// The live view owns the terminal.
		logger = logger.WithOutput(io.Discard)
	}
	defer func() { _ = logger.Sync() }()

	startTime := time.Now()
	collector := metrics.NewCollector(choice.name, storage.backend, meta.Format, meta.JobID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks policy.MultiSink
	if path := c.String("events-out"); path != "" {
		fileSink, err := ipc.CreateFileSink(path)
		if err != nil {
			iox.DiscardClose(design)
			return fmt.Errorf("failed to create events file: %w", err)
		}
		sinks = append(sinks, fileSink)
	}

	var client *lode.LodeClient
	if storage.enabled() {
		client, err = buildLodeClient(ctx, storage, meta, startTime)
		if err != nil {
			iox.DiscardClose(design)
			iox.DiscardClose(sinks)
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		sinks = append(sinks, lode.NewInstrumentedSink(lode.NewSink(client), collector))
	}

	pol, err := buildPolicy(choice, sinks, logger)
	if err != nil {
		iox.DiscardClose(design)
		iox.DiscardClose(sinks)
		return cli.Exit(fmt.Sprintf("failed to create policy: %v", err), exitFailed)
	}
	defer func() { _ = pol.Close() }()

	var pub adapter.Adapter
	if ac != nil {
		pub, err = buildAdapter(ac)
		if err != nil {
			iox.DiscardClose(design)
			return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitFailed)
		}
		defer func() { _ = pub.Close() }()
	}

	runCfg := &runtime.RunConfig{
		Meta:        meta,
		Decoder:     design,
		File:        design,
		Settings:    settings,
		SimConfig:   simCfg,
		TickRate:    resolveDuration(c, "tick-rate", cfg.Runtime.TickRate.Duration),
		Policy:      pol,
		PolicyName:  choice.name,
		EventBuffer: cfg.Runtime.EventBuffer,
		Adapter:     pub,
		Collector:   collector,
		Logger:      logger,
	}
	if client != nil {
		runCfg.Reports = client
		runCfg.FileWriter = client
		runCfg.StoragePath = buildStoragePath(storage, meta, startTime)
	}
	if c.Bool("interactive") {
		runCfg.Notifier = dispatch.NewPromptNotifier(os.Stdin, os.Stderr)
	}

	var view *tui.LiveView
	switch {
	case c.Bool("tui"):
		view = tui.NewLiveView(meta, design.Design(), stop)
		view.Start()
		runCfg.OnProgress = view.Progress
	case !c.Bool("quiet") && isStderrTTY():
		runCfg.OnProgress = progressLine(os.Stderr, design.Design())
	}

	orchestrator, err := runtime.NewRunOrchestrator(runCfg)
	if err != nil {
		iox.DiscardClose(design)
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		if view != nil {
			_ = view.Finish(string(types.OutcomeCanceled), err.Error())
		}
		return fmt.Errorf("execution failed: %w", err)
	}

	if view != nil {
		if err := view.Finish(string(result.Outcome.Status), result.Outcome.Message); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: live view: %v\n", err)
		}
	} else if runCfg.OnProgress != nil {
		fmt.Fprintln(os.Stderr)
	}

	if path := c.String("summary"); path != "" {
		summary := runtime.BuildRunSummary(result, collector.Snapshot(), choice.name)
		if err := runtime.WriteRunSummary(summary, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if !c.Bool("quiet") {
		printRunResult(os.Stdout, result, choice)
	}

	return cli.Exit("", result.Outcome.ExitCode)
}

func validatePolicyConfig(choice policyChoice) error {
	switch policy.Name(choice.name) {
	case policy.NameStrict, policy.NameNoop:
		if choice.maxEvents > 0 || choice.maxBytes > 0 || choice.flushCount > 0 || choice.flushInterval > 0 {
			fmt.Fprintf(os.Stderr, "Warning: buffer/flush flags ignored for %s policy\n", choice.name)
		}
		return nil

	case policy.NameBuffered:
		if choice.maxEvents <= 0 && choice.maxBytes <= 0 {
			return errors.New("buffered policy requires buffer limits: set --buffer-events > 0 or --buffer-bytes > 0")
		}
		return nil

	case policy.NameStreaming:
		if choice.flushCount <= 0 && choice.flushInterval <= 0 {
			return errors.New("streaming policy requires a flush trigger: set --flush-count > 0 or --flush-interval > 0")
		}
		return nil

	default:
		return fmt.Errorf("invalid --policy %q (must be strict, buffered, streaming or noop)", choice.name)
	}
}

func validateStorageConfig(s storageChoice) error {
	if !s.enabled() {
		return nil
	}
	switch s.backend {
	case "fs":
		if s.path == "" {
			return errors.New("--storage-path required when --storage-backend=fs")
		}
		info, err := os.Stat(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("--storage-path %q does not exist: create it first", s.path)
			}
			return fmt.Errorf("--storage-path %q: %w", s.path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("--storage-path %q is not a directory", s.path)
		}
		return nil

	case "s3":
		if s.path == "" {
			return errors.New("--storage-path required when --storage-backend=s3 (format: bucket/prefix)")
		}
		return nil

	case "":
		return errors.New("--storage-backend is required when --storage-path is set (fs or s3)")

	default:
		return fmt.Errorf("invalid --storage-backend %q (must be fs or s3)", s.backend)
	}
}

func buildPolicy(choice policyChoice, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	return policy.New(sink, policy.Config{
		Name: policy.Name(choice.name),
		Buffered: policy.BufferedConfig{
			MaxBufferEvents: choice.maxEvents,
			MaxBufferBytes:  choice.maxBytes,
			Logger:          logger,
		},
		Streaming: policy.StreamingConfig{
			FlushCount:    choice.flushCount,
			FlushInterval: choice.flushInterval,
			Logger:        logger,
		},
	})
}

// buildLodeClient creates the Lode client for this job's partition.
func buildLodeClient(ctx context.Context, s storageChoice, meta types.JobMeta, startTime time.Time) (*lode.LodeClient, error) {
	cfg := lode.Config{
		Dataset: s.dataset,
		Day:     lode.DeriveDay(startTime),
		JobID:   meta.JobID,
	}

	switch s.backend {
	case "fs":
		return lode.NewLodeClient(cfg, s.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, s3Config(s))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", s.backend)
	}
}

func s3Config(s storageChoice) lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// buildStoragePath returns the location of the job's partition, as
// reported in the completion notification.
func buildStoragePath(s storageChoice, meta types.JobMeta, startTime time.Time) string {
	dataset := s.dataset
	if dataset == "" {
		dataset = lode.DefaultDataset
	}
	partition := fmt.Sprintf("datasets/%s/partitions/day=%s/job_id=%s",
		dataset, lode.DeriveDay(startTime), meta.JobID)

	switch s.backend {
	case "fs":
		root := s.path
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		return "file://" + filepath.ToSlash(filepath.Join(root, partition))
	case "s3":
		bucket, prefix := lode.ParseS3Path(s.path)
		if prefix == "" {
			return fmt.Sprintf("s3://%s/%s", bucket, partition)
		}
		return fmt.Sprintf("s3://%s/%s/%s", bucket, strings.Trim(prefix, "/"), partition)
	default:
		return ""
	}
}

// parseAdapterConfigWithPrecedence resolves adapter settings from flags
// and the config file. Config headers are merged under flag headers.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (*adapterChoice, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}

	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", cfg.Adapter.URL),
		channel:     resolveString(c, "adapter-channel", cfg.Adapter.Channel),
		timeout:     resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		retries:     c.Int("adapter-retries"),
		headers:     make(map[string]string),
	}
	if !c.IsSet("adapter-retries") && cfg.Adapter.Retries != nil {
		ac.retries = *cfg.Adapter.Retries
	}

	for k, v := range cfg.Adapter.Headers {
		ac.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: expected key=value", h)
		}
		ac.headers[k] = v
	}

	switch adapterType {
	case "webhook":
		if ac.url == "" {
			return nil, errors.New("--adapter-url is required when --adapter=webhook")
		}
	case "redis":
		if ac.url == "" {
			return nil, errors.New("--adapter-url is required when --adapter=redis (format: redis://host:port)")
		}
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
	if ac.retries < 0 {
		return nil, fmt.Errorf("invalid --adapter-retries %d: must be >= 0", ac.retries)
	}
	return ac, nil
}

func buildAdapter(ac *adapterChoice) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.adapterType)
	}
}

// progressLine redraws a single progress line on a terminal.
func progressLine(w io.Writer, design types.Design) func(types.JobReport) {
	return func(r types.JobReport) {
		total := int64(design.Stitches)
		if total == 0 {
			total = r.Programmed.Stitches
		}
		fmt.Fprintf(w, "\r%s %d/%d stitches  %-9s", tui.Bar(r.Executed.Stitches, total, progressBarWidth),
			r.Executed.Stitches, total, r.State)
	}
}

func printRunResult(w io.Writer, result *runtime.RunResult, choice policyChoice) {
	rep := result.Report
	fmt.Fprintf(w, "\njob_id=%s, outcome=%s, duration=%s\n",
		result.Meta.JobID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	if choice.name == string(policy.NameBuffered) {
		fmt.Fprintf(w, "policy=%s, drops=%d, buffer_bytes=%d\n",
			choice.name,
			result.PolicyStats.EventsDropped,
			result.PolicyStats.BufferSize,
		)
	} else {
		fmt.Fprintf(w, "policy=%s\n", choice.name)
	}

	fmt.Fprintf(w, "\n=== Job Result ===\n")
	fmt.Fprintf(w, "Job ID:         %s\n", result.Meta.JobID)
	fmt.Fprintf(w, "File:           %s\n", result.Meta.File)
	fmt.Fprintf(w, "Format:         %s\n", result.Meta.Format)
	fmt.Fprintf(w, "Outcome:        %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:        %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Duration:       %s\n", result.Duration)
	fmt.Fprintf(w, "Events:         %d\n", result.EventCount)
	if result.Overflow > 0 {
		fmt.Fprintf(w, "Events Lost:    %d\n", result.Overflow)
	}

	fmt.Fprintf(w, "\n=== Stitches ===\n")
	fmt.Fprintf(w, "Executed:       %d / %d\n", rep.Executed.Stitches, rep.Programmed.Stitches)
	fmt.Fprintf(w, "Jumps:          %d\n", rep.Executed.Jumps)
	fmt.Fprintf(w, "Trims:          %d\n", result.Trims)
	fmt.Fprintf(w, "Thread Changes: %d\n", result.ThreadChanges)
	if rep.Executed.SequinEjects > 0 {
		fmt.Fprintf(w, "Sequin Ejects:  %d\n", rep.Executed.SequinEjects)
	}
	fmt.Fprintf(w, "Needle RPM:     %.0f\n", rep.RPM())
	if rep.TriggerErrors > 0 {
		fmt.Fprintf(w, "Trigger Errors: %d\n", rep.TriggerErrors)
	}
	if rep.Truncated {
		fmt.Fprintf(w, "Warning:        pattern ended on a partial record\n")
	}

	fmt.Fprintf(w, "\n=== Policy Stats ===\n")
	fmt.Fprintf(w, "Events Total:     %d\n", result.PolicyStats.TotalEvents)
	fmt.Fprintf(w, "Events Persisted: %d\n", result.PolicyStats.EventsPersisted)
	fmt.Fprintf(w, "Events Dropped:   %d\n", result.PolicyStats.EventsDropped)
	fmt.Fprintf(w, "Flushes:          %d\n", result.PolicyStats.FlushCount)
}
