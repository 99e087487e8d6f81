// Package job implements the real-time embroidery job: the stitch queue
// consumer driven once per tick, needle trigger synchronization and the
// pause/resume cycle around thread events.
//
// A Context is touched from four goroutines:
//   - the foreground loop calls Tick and runs dispatcher tasks;
//   - the refill loop calls Refill (the only queue producer);
//   - the sensor calls Trigger;
//   - the machine calls OnStateChange.
//
// Tick and Trigger never take a lock. State shared across goroutines is
// held in atomics; everything else is owned by the foreground loop.
package job

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/queue"
	"github.com/pithecene-io/stitcher/types"
)

// Await flags. Any set flag holds the queue.
const (
	awaitPaused uint32 = 1 << iota
	awaitTrigger
	awaitJumpSettle
)

// Deps are the collaborators of a Context. Planner, Machine, Needle and
// Dispatcher are required.
type Deps struct {
	Planner    Planner
	Machine    Machine
	Needle     *Needle
	Outputs    Outputs
	Sensor     Sensor
	Dispatcher Dispatcher
	Observer   Observer
	Logger     *log.Logger
	Clock      Clock
	// OnDone is called once with the final report when the job completes
	// or is canceled.
	OnDone func(types.JobReport)
}

// Context is the state of one streamed job.
type Context struct {
	settings Settings
	deps     Deps
	logger   *log.Logger
	now      Clock
	epoch    time.Time

	queue *queue.Queue

	// set by Arm
	meta     types.JobMeta
	dec      codec.Decoder
	file     io.Closer
	design   types.Design
	armed    atomic.Bool
	syncMode bool

	// foreground-owned
	stitching   atomic.Bool
	first       atomic.Bool
	spindleStop time.Duration
	jumpOutput  bool
	settling    bool
	settleSince time.Duration
	color       types.ThreadColor
	position    atomic.Pointer[types.Position]

	// refill-owned
	enqueued  atomic.Bool
	truncated atomic.Bool
	readErr   atomic.Pointer[error]

	programmed counters
	executed   counters

	await        atomic.Uint32
	machineState atomic.Uint32

	// trigger timing, nanoseconds since epoch
	lastTrigger        atomic.Int64
	triggerInterval    atomic.Int64
	minTriggerInterval atomic.Int64
	stitchInterval     atomic.Int64
	triggers           atomic.Int64
	triggerErrors      atomic.Int64

	cancelRequested atomic.Bool
	completed       atomic.Bool
	outcome         atomic.Pointer[types.OutcomeStatus]
	finishedAt      atomic.Int64
	closeOnce       sync.Once
}

// New creates an inert Context. Call Arm to start a job.
func New(settings Settings, deps Deps) (*Context, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if deps.Planner == nil || deps.Machine == nil || deps.Needle == nil || deps.Dispatcher == nil {
		return nil, errors.New("planner, machine, needle and dispatcher are required")
	}
	q, err := queue.New(settings.QueueSize)
	if err != nil {
		return nil, err
	}

	c := &Context{
		settings: settings,
		deps:     deps,
		logger:   deps.Logger,
		now:      deps.Clock,
		queue:    q,
	}
	if c.logger == nil {
		c.logger = log.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.epoch = c.now()
	c.position.Store(&types.Position{})
	c.machineState.Store(uint32(deps.Machine.State()))
	return c, nil
}

// Arm binds an opened design to the context and starts streaming.
// file, if non-nil, is closed when the job ends.
func (c *Context) Arm(meta types.JobMeta, dec codec.Decoder, file io.Closer) error {
	if !c.armed.CompareAndSwap(false, true) {
		return ErrAlreadyArmed
	}

	c.meta = meta
	c.dec = dec
	c.file = file
	c.design = dec.Design()
	if c.meta.Format == "" {
		c.meta.Format = c.design.Format
	}

	pos := c.deps.Planner.Position()
	c.position.Store(&pos)
	c.syncMode = c.settings.SyncMode
	c.epoch = c.now()

	if c.syncMode {
		if err := c.claimSensor(); err != nil {
			c.syncMode = false
			c.logger.Warn("sync mode disabled, using needle strokes", map[string]any{
				"port":  c.settings.TriggerPort,
				"error": err.Error(),
			})
		}
	}

	c.observe(types.JobEventStarted, map[string]any{
		"file":    c.meta.File,
		"format":  c.meta.Format,
		"design":  c.design.Name,
		"sync":    c.syncMode,
		"threads": c.design.Threads,
	})
	c.logger.Info("job armed", map[string]any{
		"design":   c.design.Name,
		"stitches": c.design.Stitches,
		"sync":     c.syncMode,
	})
	return nil
}

func (c *Context) claimSensor() error {
	if c.deps.Sensor == nil {
		return ErrNoSensor
	}
	if err := c.deps.Sensor.Claim(c.settings.TriggerPort, c.Trigger); err != nil {
		return fmt.Errorf("%w: %w", ErrNoSensor, err)
	}
	return nil
}

// Refill decodes one stitch into the queue. It must only be called from
// a single producer goroutine.
//
// Returns ErrQueueFull when no slot is free, io.EOF once the decoder is
// exhausted, or the decoder's read error. A truncated final record ends
// the pattern like an end marker.
func (c *Context) Refill() error {
	if !c.armed.Load() {
		return ErrNotArmed
	}
	if c.enqueued.Load() || c.completed.Load() {
		return io.EOF
	}
	if c.queue.Full() {
		return ErrQueueFull
	}

	s, err := c.dec.Next()
	if err != nil {
		if codec.IsTruncated(err) {
			c.truncated.Store(true)
			c.logger.Warn("pattern truncated", map[string]any{"error": err.Error()})
		} else if !errors.Is(err, io.EOF) {
			c.readErr.Store(&err)
			c.logger.Error("stitch decode failed", map[string]any{"error": err.Error()})
		}
		c.enqueued.Store(true)
		if codec.IsEndOfPattern(err) {
			return io.EOF
		}
		return err
	}

	c.programmed.add(s.Type)
	if !c.queue.TryPush(s) {
		// Unreachable with a single producer: Full was checked above.
		return ErrQueueFull
	}
	return nil
}

// Cancel requests cancellation. It is safe from any goroutine; the next
// Tick ends the job with outcome canceled.
func (c *Context) Cancel() {
	c.cancelRequested.Store(true)
}

// CancelRequested reports whether Cancel has been called.
func (c *Context) CancelRequested() bool {
	return c.cancelRequested.Load()
}

// Close ends the job: queue drained, needle off, file closed, OnDone
// fired. A job that has not completed is recorded as canceled. Close is
// idempotent and must not run concurrently with Tick or Refill.
func (c *Context) Close() {
	c.finish(types.OutcomeCanceled)
}

// finish runs the teardown exactly once.
func (c *Context) finish(outcome types.OutcomeStatus) {
	c.closeOnce.Do(func() {
		c.completed.Store(true)
		c.enqueued.Store(true)
		c.outcome.Store(&outcome)
		c.finishedAt.Store(c.since())

		dropped := c.queue.Drain()
		c.deps.Needle.Off()
		c.spindleStop = 0
		c.setJumpOutput(false)

		if c.file != nil {
			if err := c.file.Close(); err != nil {
				c.logger.Warn("close design file", map[string]any{"error": err.Error()})
			}
			c.file = nil
		}

		report := c.Snapshot()
		eventType := types.JobEventCompleted
		if outcome == types.OutcomeCanceled {
			eventType = types.JobEventCanceled
		}
		c.observe(eventType, map[string]any{
			"stitches":       report.Executed.Stitches,
			"jumps":          report.Executed.Jumps,
			"trims":          report.Executed.Trims,
			"thread_changes": report.Executed.ThreadChanges,
			"trigger_errors": report.TriggerErrors,
			"truncated":      report.Truncated,
			"dropped":        dropped,
		})
		c.logger.Info("job finished", map[string]any{
			"outcome":  string(outcome),
			"executed": report.Executed.Total(),
			"dropped":  dropped,
		})

		if c.deps.OnDone != nil {
			c.deps.OnDone(report)
		}
	})
}

// Done reports whether the job has ended.
func (c *Context) Done() bool {
	return c.completed.Load()
}

// Enqueued reports whether the decoder is exhausted.
func (c *Context) Enqueued() bool {
	return c.enqueued.Load()
}

// QueueFull reports whether the refill loop has nothing to do.
func (c *Context) QueueFull() bool {
	return c.queue.Full()
}

// SyncMode reports whether stitches are gated on the needle sensor.
func (c *Context) SyncMode() bool {
	return c.syncMode
}

// Meta returns the job identity.
func (c *Context) Meta() types.JobMeta {
	return c.meta
}

// ReadErr returns the decoder error that ended the stream, if any.
func (c *Context) ReadErr() error {
	if p := c.readErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Snapshot returns a point-in-time report. Safe from any goroutine.
func (c *Context) Snapshot() types.JobReport {
	r := types.JobReport{
		JobID:              c.meta.JobID,
		File:               c.meta.File,
		Design:             c.design,
		State:              c.State(),
		Programmed:         c.programmed.load(),
		Executed:           c.executed.load(),
		Triggers:           c.triggers.Load(),
		TriggerErrors:      c.triggerErrors.Load(),
		TriggerInterval:    time.Duration(c.triggerInterval.Load()),
		MinTriggerInterval: time.Duration(c.minTriggerInterval.Load()),
		StitchInterval:     time.Duration(c.stitchInterval.Load()),
		Truncated:          c.truncated.Load(),
		Position:           *c.position.Load(),
		Duration:           time.Duration(c.since()),
	}
	if o := c.outcome.Load(); o != nil {
		r.Outcome = *o
		r.Duration = time.Duration(c.finishedAt.Load())
	}
	return r
}

// State returns the job lifecycle state.
func (c *Context) State() types.JobState {
	switch {
	case c.completed.Load():
		return types.JobCompleted
	case !c.armed.Load():
		return types.JobIdle
	case c.await.Load()&(awaitPaused|awaitJumpSettle) != 0:
		return types.JobPaused
	default:
		return types.JobStreaming
	}
}

// since returns nanoseconds elapsed since the job epoch.
func (c *Context) since() int64 {
	return int64(c.now().Sub(c.epoch))
}

func (c *Context) observe(t types.JobEventType, payload map[string]any) {
	if c.deps.Observer != nil {
		c.deps.Observer.Observe(t, payload)
	}
}

func (c *Context) setJumpOutput(on bool) {
	if !c.settings.JumpOutput || c.jumpOutput == on {
		return
	}
	c.jumpOutput = on
	if c.deps.Outputs != nil {
		c.deps.Outputs.SetOutput(c.settings.JumpOutputPort, on)
	}
}
