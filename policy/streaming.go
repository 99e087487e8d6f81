package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/types"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush after N events accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates a job termination flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy implements continuous persistence with batched writes.
//
//   - No drops: all event types are persisted (same guarantee as strict)
//   - Periodic flush: buffer flushed when any trigger fires
//   - On flush failure the batch is restored and retried on the next trigger
//
// Thread safety:
//   - mu guards buffer state and stats
//   - flushMu serializes flushes from the interval goroutine and count trigger
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu          sync.Mutex
	buffer      []*types.JobEvent
	bufferBytes int64
	stats       *statsRecorder

	flushMu sync.Mutex

	// Guarded by mu.
	flushByCount       int64
	flushByInterval    int64
	flushByTermination int64

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

// NewStreamingPolicy creates a new streaming policy.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.JobEvent, 0, 128),
		stats:  newStatsRecorder(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	} else {
		close(p.doneCh)
	}

	return p, nil
}

// IngestEvent adds the event to the buffer.
// Never drops events. Reaching the count threshold flushes synchronously.
func (p *StreamingPolicy) IngestEvent(ctx context.Context, event *types.JobEvent) error {
	p.mu.Lock()
	p.stats.incTotalEventsLocked()
	p.buffer = append(p.buffer, event)
	p.bufferBytes += estimateEventSize(event)
	p.stats.setBufferSizeLocked(p.bufferBytes)
	shouldFlush := p.config.FlushCount > 0 && len(p.buffer) >= p.config.FlushCount
	p.mu.Unlock()

	if shouldFlush {
		return p.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// Flush flushes all buffered data (termination trigger).
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush swaps buffers under mu, writes outside mu, and restores on failure.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	switch trigger {
	case FlushTriggerCount:
		p.flushByCount++
	case FlushTriggerInterval:
		p.flushByInterval++
	case FlushTriggerTermination:
		p.flushByTermination++
	}
	p.stats.incFlushLocked()

	events := p.buffer
	if len(events) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.buffer = make([]*types.JobEvent, 0, 128)
	p.recalculateBufferBytes()
	p.mu.Unlock()

	if err := p.sink.WriteEvents(ctx, events); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.buffer = append(events, p.buffer...)
		p.recalculateBufferBytes()
		p.mu.Unlock()
		p.logFlushFailure(trigger, err)
		return err
	}

	p.mu.Lock()
	p.stats.incEventsPersistedLocked(int64(len(events)))
	p.mu.Unlock()

	p.logFlush(trigger, len(events))
	return nil
}

// Close stops the interval goroutine, flushes and closes the sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	<-p.doneCh

	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy statistics.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

// FlushTriggerStats returns per-trigger flush counts.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:       p.flushByCount,
		FlushTriggerInterval:    p.flushByInterval,
		FlushTriggerTermination: p.flushByTermination,
	}
}

func (p *StreamingPolicy) intervalLoop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.buffer) > 0
			p.mu.Unlock()

			if hasData {
				// Errors are logged; the batch is retried on the next trigger.
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

// recalculateBufferBytes recalculates bufferBytes. Caller must hold mu.
func (p *StreamingPolicy) recalculateBufferBytes() {
	var total int64
	for _, event := range p.buffer {
		total += estimateEventSize(event)
	}
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(total)
}

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, events int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("streaming flush", map[string]any{
		"trigger": string(trigger),
		"events":  events,
		"policy":  string(NameStreaming),
	})
}

func (p *StreamingPolicy) logFlushFailure(trigger FlushTrigger, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"trigger": string(trigger),
		"error":   err.Error(),
		"policy":  string(NameStreaming),
	})
}

var _ Policy = (*StreamingPolicy)(nil)
