package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/policy"
	"github.com/pithecene-io/stitcher/types"
)

// DefaultEventBuffer is the recorder channel capacity.
const DefaultEventBuffer = 4096

// RecorderError classifies recorder failures for outcome determination.
type RecorderError struct {
	// Kind indicates whether the policy failed or the run was canceled.
	Kind RecorderErrorKind
	// Err is the underlying error.
	Err error
}

// RecorderErrorKind classifies recorder errors.
type RecorderErrorKind int

const (
	// RecorderErrorPolicy indicates a policy failure on a non-droppable event.
	RecorderErrorPolicy RecorderErrorKind = iota
	// RecorderErrorCanceled indicates context cancellation.
	RecorderErrorCanceled
)

func (e *RecorderError) Error() string {
	return e.Err.Error()
}

func (e *RecorderError) Unwrap() error {
	return e.Err
}

// IsPolicyError returns true if the error is a policy failure.
func IsPolicyError(err error) bool {
	var recErr *RecorderError
	return errors.As(err, &recErr) && recErr.Kind == RecorderErrorPolicy
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var recErr *RecorderError
	return errors.As(err, &recErr) && recErr.Kind == RecorderErrorCanceled
}

// Recorder turns job observations into telemetry events and feeds them to
// an ingestion policy.
//
// Observe is called from the tick and from the sensor callback, so it only
// stamps the envelope and hands it to a bounded channel; Run drains the
// channel on its own goroutine. Invariants:
//   - sequence numbers are strictly monotonic from 1 in emission order
//   - the first terminal event wins; later terminals are ignored
//   - a full channel drops the event and counts it as overflow
//   - a policy failure stops ingestion and is reported by Run
type Recorder struct {
	jobID     string
	events    chan *types.JobEvent
	policy    policy.Policy
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time

	overflow  atomic.Int64
	closeOnce sync.Once

	// owned by Run
	seq           int64
	terminalSeen  bool
	terminalEvent *types.JobEvent
	ingested      int64
}

// NewRecorder creates a recorder for jobID. buffer <= 0 uses DefaultEventBuffer.
func NewRecorder(jobID string, pol policy.Policy, buffer int, logger *log.Logger, collector *metrics.Collector) *Recorder {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Recorder{
		jobID:     jobID,
		events:    make(chan *types.JobEvent, buffer),
		policy:    pol,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// Observe implements job.Observer. It never blocks.
func (r *Recorder) Observe(t types.JobEventType, payload map[string]any) {
	event := &types.JobEvent{
		ContractVersion: types.ContractVersion,
		EventID:         uuid.NewString(),
		JobID:           r.jobID,
		Type:            t,
		Ts:              r.now().UTC().Format(time.RFC3339Nano),
		Payload:         payload,
	}

	// Seq is assigned by Run, so overflow leaves no gap.
	select {
	case r.events <- event:
		r.collector.IncEventsEmitted()
	default:
		r.overflow.Add(1)
		r.collector.IncEventsOverflow()
		if !t.IsDroppable() {
			r.logger.Warn("event channel full, event lost", map[string]any{"type": t})
		}
	}
}

// Close stops accepting events. Run returns once the channel is drained.
// Observe must not be called after Close.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.events) })
}

// Run ingests events until the channel is closed and drained.
// Returns:
//   - nil: every event was handed to the policy
//   - *RecorderError with Kind=RecorderErrorPolicy: policy failure
//   - *RecorderError with Kind=RecorderErrorCanceled: context canceled
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &RecorderError{Kind: RecorderErrorCanceled, Err: ctx.Err()}
		case event, ok := <-r.events:
			if !ok {
				return nil
			}
			if err := r.process(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (r *Recorder) process(ctx context.Context, event *types.JobEvent) error {
	if event.Type.IsTerminal() {
		if r.terminalSeen {
			r.logger.Warn("ignoring duplicate terminal event", map[string]any{
				"type": event.Type,
			})
			return nil
		}
		r.terminalSeen = true
		r.terminalEvent = event
	}

	r.seq++
	event.Seq = r.seq

	if err := r.policy.IngestEvent(ctx, event); err != nil {
		r.logger.Error("policy ingestion failed", map[string]any{
			"event_type": event.Type,
			"seq":        event.Seq,
			"error":      err.Error(),
		})
		return &RecorderError{
			Kind: RecorderErrorPolicy,
			Err:  fmt.Errorf("policy failure: %w", err),
		}
	}
	r.ingested++
	return nil
}

// TerminalEvent returns the terminal event if one was ingested.
// Only valid after Run has returned.
func (r *Recorder) TerminalEvent() (*types.JobEvent, bool) {
	return r.terminalEvent, r.terminalSeen
}

// Ingested returns the number of events handed to the policy.
// Only valid after Run has returned.
func (r *Recorder) Ingested() int64 {
	return r.ingested
}

// Overflow returns the number of events lost to a full channel.
func (r *Recorder) Overflow() int64 {
	return r.overflow.Load()
}
