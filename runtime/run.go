package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/stitcher/adapter"
	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/dispatch"
	"github.com/pithecene-io/stitcher/job"
	"github.com/pithecene-io/stitcher/lode"
	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/motion"
	"github.com/pithecene-io/stitcher/policy"
	"github.com/pithecene-io/stitcher/types"
)

// Runtime defaults.
const (
	DefaultTickRate         = time.Millisecond
	DefaultProgressInterval = 100 * time.Millisecond
	// SummaryFilename is the sidecar name of the stored run summary.
	SummaryFilename = "report.json"

	finalizeTimeout = 30 * time.Second
)

// RunConfig configures a single job run.
type RunConfig struct {
	// Meta is the job identity.
	Meta types.JobMeta
	// Decoder is the opened design. File, if non-nil, is closed when the
	// job ends.
	Decoder codec.Decoder
	File    io.Closer
	// Settings configures the job state machine.
	Settings job.Settings
	// Sim is the machine the job drives. If nil, one is created from SimConfig.
	Sim       *motion.Sim
	SimConfig motion.Config
	// TickRate is the foreground tick period (default 1ms).
	TickRate time.Duration
	// Policy is the telemetry ingestion policy. The caller closes it.
	Policy     policy.Policy
	PolicyName string
	// EventBuffer is the recorder channel capacity.
	EventBuffer int
	// Notifier is told about thread events while the machine is held.
	// If nil, events are logged.
	Notifier dispatch.Notifier
	// Reports persists the final report and metrics. Optional.
	Reports lode.Client
	// FileWriter stores the run summary sidecar. Optional.
	FileWriter lode.FileWriter
	// StoragePath is included in the completion notification.
	StoragePath string
	// Adapter publishes the completion notification. Optional.
	Adapter adapter.Adapter
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the default job logger.
	Logger *log.Logger
	// OnProgress, if set, receives a report snapshot every ProgressInterval.
	// It is called from the foreground loop and must return quickly.
	OnProgress       func(types.JobReport)
	ProgressInterval time.Duration
}

// RunResult represents the result of a run.
type RunResult struct {
	// Meta is the job identity.
	Meta types.JobMeta
	// Outcome is the run outcome.
	Outcome *Outcome
	// Report is the final job report.
	Report types.JobReport
	// Duration is the total run duration including persistence.
	Duration time.Duration
	// PolicyStats is the policy statistics.
	PolicyStats policy.Stats
	// EventCount is the number of telemetry events ingested.
	EventCount int64
	// Overflow is the number of events lost to a full recorder channel.
	Overflow int64
	// Trims and ThreadChanges count completed thread events.
	Trims         int64
	ThreadChanges int64
	// Motion is the executed motion summary.
	Motion motion.Stats
	// Terminal is the terminal telemetry event, if it was ingested.
	Terminal *types.JobEvent
}

// RunOrchestrator orchestrates a single job run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if the job metadata or config is invalid.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job metadata: %w", err)
	}
	if config.Decoder == nil {
		return nil, errors.New("decoder is required")
	}
	if config.Policy == nil {
		return nil, errors.New("policy is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(&config.Meta)
	}
	if config.TickRate <= 0 {
		config.TickRate = DefaultTickRate
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}
	if config.Sim == nil {
		simCfg := config.SimConfig
		if simCfg.Logger == nil {
			simCfg.Logger = logger
		}
		config.Sim = motion.NewSim(simCfg)
	}
	if config.Notifier == nil {
		config.Notifier = dispatch.LogNotifier{Logger: logger}
	}

	return &RunOrchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute runs the job end-to-end.
//
// Execution flow:
//  1. Start the machine and the telemetry recorder
//  2. Arm the job and start the refill goroutine
//  3. Tick and run dispatch tasks on this goroutine until the job ends
//  4. Drain the recorder and flush the policy
//  5. Determine outcome, persist the report, publish the notification
//
// Canceling ctx ends the job with outcome canceled; steps 4 and 5 still run.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	cfg := r.config
	r.startTime = time.Now()
	cfg.Collector.IncJobStarted()

	sim := cfg.Sim
	tasks := dispatch.NewQueue(0, r.logger)
	needle := job.NewNeedle(sim)
	sequencer := dispatch.NewSequencer(tasks, needle, sim, sim, cfg.Notifier)
	recorder := NewRecorder(cfg.Meta.JobID, cfg.Policy, cfg.EventBuffer, r.logger, cfg.Collector)

	var final *types.JobReport
	jc, err := job.New(cfg.Settings, job.Deps{
		Planner:    sim,
		Machine:    sim,
		Needle:     needle,
		Outputs:    sim,
		Sensor:     sim,
		Dispatcher: sequencer,
		Observer:   recorder,
		Logger:     r.logger,
		OnDone: func(report types.JobReport) {
			final = &report
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	sim.OnStateChange(jc.OnStateChange)

	simCtx, stopSim := context.WithCancel(ctx)
	var simWG sync.WaitGroup
	simWG.Go(func() {
		if err := sim.Run(simCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("machine stopped", map[string]any{"error": err.Error()})
		}
	})

	// The recorder outlives ctx so the terminal event is still persisted.
	recorderDone := make(chan error, 1)
	go func() {
		recorderDone <- recorder.Run(context.WithoutCancel(ctx))
	}()

	if err := jc.Arm(cfg.Meta, cfg.Decoder, cfg.File); err != nil {
		stopSim()
		simWG.Wait()
		recorder.Close()
		<-recorderDone
		return nil, fmt.Errorf("arm job: %w", err)
	}

	r.logger.Info("starting job", map[string]any{
		"tick_rate": cfg.TickRate.String(),
		"sync":      jc.SyncMode(),
	})

	r.foreground(ctx, jc, tasks)

	stopSim()
	simWG.Wait()

	recorder.Close()
	recErr := <-recorderDone
	if recErr != nil {
		r.logger.Error("telemetry ingestion failed", map[string]any{"error": recErr.Error()})
	}

	// Best-effort flush on every termination path.
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	flushErr := cfg.Policy.Flush(flushCtx)
	flushCancel()
	if flushErr != nil {
		r.logger.Warn("policy flush failed (best effort)", map[string]any{
			"error": flushErr.Error(),
		})
	}

	report := jc.Snapshot()
	if final != nil {
		report = *final
	}
	outcome := DetermineOutcome(report, jc.ReadErr(), recErr, flushErr)
	trims, changes := sequencer.Handled()
	terminal, _ := recorder.TerminalEvent()

	cfg.Collector.SetDispatch(tasks.Dropped(), tasks.Failed())

	result := r.buildResult(outcome, report, recorder, terminal)
	result.Trims = trims
	result.ThreadChanges = changes
	result.Motion = sim.Stats()

	r.logger.Info("job completed", map[string]any{
		"outcome":   outcome.Status,
		"exit_code": outcome.ExitCode,
		"events":    result.EventCount,
		"duration":  result.Duration.String(),
	})

	finalizeCtx, finalizeCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalizeCancel()
	r.persist(finalizeCtx, result)
	r.publish(finalizeCtx, result)

	result.Duration = time.Since(r.startTime)
	return result, nil
}

// foreground ticks the job and runs dispatch tasks until the job ends.
func (r *RunOrchestrator) foreground(ctx context.Context, jc *job.Context, tasks *dispatch.Queue) {
	cfg := r.config

	wake := make(chan struct{}, 1)
	refillCtx, stopRefill := context.WithCancel(ctx)
	refillDone := make(chan struct{})
	go func() {
		defer close(refillDone)
		refill(refillCtx, jc, wake)
	}()
	// Close must not race Refill.
	stopRefilling := func() {
		stopRefill()
		<-refillDone
	}
	defer stopRefilling()

	ticker := time.NewTicker(cfg.TickRate)
	defer ticker.Stop()
	lastProgress := time.Now()

	for !jc.Done() {
		select {
		case <-ctx.Done():
			if !jc.CancelRequested() {
				r.logger.Warn("job canceled", map[string]any{"reason": context.Cause(ctx).Error()})
				jc.Cancel()
			}
		case <-ticker.C:
		}

		// A canceled Tick closes the design file; Refill must be stopped first.
		if jc.CancelRequested() {
			stopRefilling()
		}
		if !r.tick(jc) {
			stopRefilling()
			jc.Close()
			continue
		}
		tasks.RunPending(ctx)

		select {
		case wake <- struct{}{}:
		default:
		}

		if cfg.OnProgress != nil && time.Since(lastProgress) >= cfg.ProgressInterval {
			lastProgress = time.Now()
			cfg.OnProgress(jc.Snapshot())
		}
	}

	if cfg.OnProgress != nil {
		cfg.OnProgress(jc.Snapshot())
	}
}

// tick runs one Tick. A panic is logged and reported as false so the
// caller can end the job instead of leaving the machine running.
func (r *RunOrchestrator) tick(jc *job.Context) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tick panicked", map[string]any{"panic": fmt.Sprint(p)})
			ok = false
		}
	}()
	jc.Tick()
	return true
}

// refill is the single queue producer. It fills the queue, then sleeps
// until the foreground loop wakes it, and returns once the decoder is
// exhausted.
func refill(ctx context.Context, jc *job.Context, wake <-chan struct{}) {
	for {
		for {
			err := jc.Refill()
			if err == nil {
				continue
			}
			if errors.Is(err, job.ErrQueueFull) {
				break
			}
			// io.EOF or a read error; Refill has recorded it.
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-wake:
		}
	}
}

// buildResult constructs the run result and records outcome metrics.
func (r *RunOrchestrator) buildResult(outcome *Outcome, report types.JobReport, recorder *Recorder, terminal *types.JobEvent) *RunResult {
	meta := r.config.Meta
	if meta.Format == "" {
		meta.Format = report.Design.Format
	}
	result := &RunResult{
		Meta:        meta,
		Outcome:     outcome,
		Report:      report,
		Duration:    time.Since(r.startTime),
		PolicyStats: r.config.Policy.Stats(),
		EventCount:  recorder.Ingested(),
		Overflow:    recorder.Overflow(),
		Terminal:    terminal,
	}

	switch outcome.Status {
	case types.OutcomeCompleted:
		r.config.Collector.IncJobCompleted()
	case types.OutcomeCanceled:
		r.config.Collector.IncJobCanceled()
	}

	ps := result.PolicyStats
	droppedByType := make(map[string]int64, len(ps.DroppedByType))
	for k, v := range ps.DroppedByType {
		droppedByType[string(k)] = v
	}
	r.config.Collector.AbsorbPolicyStats(ps.TotalEvents, ps.EventsPersisted, ps.EventsDropped, droppedByType)

	return result
}

// persist writes the report records and the summary sidecar. Failures
// are logged; the job outcome is already decided.
func (r *RunOrchestrator) persist(ctx context.Context, result *RunResult) {
	cfg := r.config
	completedAt := time.Now()

	if cfg.Reports != nil {
		if err := cfg.Reports.WriteReport(ctx, result.Report, cfg.Collector.Snapshot(), completedAt); err != nil {
			r.logger.Error("report write failed", map[string]any{"error": err.Error()})
		}
	}

	if cfg.FileWriter != nil {
		summary := BuildRunSummary(result, cfg.Collector.Snapshot(), cfg.PolicyName)
		data, err := MarshalRunSummary(summary)
		if err == nil {
			err = cfg.FileWriter.PutFile(ctx, SummaryFilename, "application/json", data)
		}
		if err != nil {
			r.logger.Error("summary sidecar write failed", map[string]any{"error": err.Error()})
		}
	}
}

// publish sends the completion notification. Failures are logged and
// counted; they never change the outcome.
func (r *RunOrchestrator) publish(ctx context.Context, result *RunResult) {
	cfg := r.config
	if cfg.Adapter == nil {
		return
	}

	event := adapter.NewJobCompletedEvent(result.Report, cfg.StoragePath, time.Now())
	if err := cfg.Adapter.Publish(ctx, event); err != nil {
		cfg.Collector.IncAdapterPublishFailure()
		r.logger.Error("adapter publish failed", map[string]any{"error": err.Error()})
		return
	}
	cfg.Collector.IncAdapterPublishSuccess()
	r.logger.Info("adapter notified", map[string]any{"outcome": event.Outcome})
}
