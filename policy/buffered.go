package policy

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferEvents is the maximum number of events to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferEvents int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated).
	// Zero means no limit (use MaxBufferEvents instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferEvents: 1000,
		MaxBufferBytes:  1024 * 1024,
	}
}

// ErrBufferFull is returned when the buffer is full and the event is non-droppable.
var ErrBufferFull = errors.New("buffer full: cannot accept non-droppable event")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferEvents or MaxBufferBytes must be set")

// BufferedPolicy implements buffered persistence with drop rules.
//
//   - Bounded buffer with explicit limits
//   - May drop: stitch, jump
//   - Batch writes on flush, in seq order
//   - On flush failure the buffer is kept; retry may duplicate, never lose
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	flushMu sync.Mutex // serializes flushes

	mu          sync.Mutex // guards buffer state and stats
	buffer      []*types.JobEvent
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferEvents <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.JobEvent, 0, min(max(config.MaxBufferEvents, 64), 4096)),
		stats:  newStatsRecorder(),
	}, nil
}

// IngestEvent buffers the event, applying drop rules if the buffer is full.
//
// Drop strategy when full:
//   - incoming droppable event: drop it
//   - incoming non-droppable event: evict the oldest droppable event
//   - no droppable event to evict: ErrBufferFull
func (p *BufferedPolicy) IngestEvent(_ context.Context, event *types.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalEventsLocked()
	size := estimateEventSize(event)

	if p.hasRoomForEvent(size) {
		p.appendEvent(event, size)
		return nil
	}

	if IsDroppable(event.Type) {
		p.stats.incEventsDroppedLocked(event.Type)
		p.logDrop(event.Type, "buffer_full")
		return nil
	}

	for p.dropOldestDroppable() {
		if p.hasRoomForEvent(size) {
			p.appendEvent(event, size)
			return nil
		}
	}

	p.stats.incErrorsLocked()
	p.logBufferOverflow(event.Type)
	return ErrBufferFull
}

// appendEvent adds an event to the buffer. Caller must hold mu.
func (p *BufferedPolicy) appendEvent(event *types.JobEvent, size int64) {
	p.buffer = append(p.buffer, event)
	p.bufferBytes += size
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// Flush writes all buffered events to the sink.
// On failure the events are restored ahead of anything ingested meanwhile.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.stats.incFlushLocked()
	events := p.buffer
	p.buffer = make([]*types.JobEvent, 0, cap(events))
	p.recalculateBufferBytes()
	p.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	if err := p.sink.WriteEvents(ctx, events); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.buffer = append(events, p.buffer...)
		p.recalculateBufferBytes()
		p.mu.Unlock()
		p.logFlushFailure(err)
		return err
	}

	p.mu.Lock()
	p.stats.incEventsPersistedLocked(int64(len(events)))
	p.mu.Unlock()
	return nil
}

// recalculateBufferBytes recalculates bufferBytes. Caller must hold mu.
func (p *BufferedPolicy) recalculateBufferBytes() {
	var total int64
	for _, event := range p.buffer {
		total += estimateEventSize(event)
	}
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(total)
}

// Close flushes remaining data and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

func (p *BufferedPolicy) hasRoomForEvent(size int64) bool {
	if p.config.MaxBufferEvents > 0 && len(p.buffer) >= p.config.MaxBufferEvents {
		return false
	}
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+size > p.config.MaxBufferBytes {
		return false
	}
	return true
}

// dropOldestDroppable removes the oldest droppable event from the buffer.
// Returns false if no droppable events exist. Caller must hold mu.
func (p *BufferedPolicy) dropOldestDroppable() bool {
	i := slices.IndexFunc(p.buffer, func(e *types.JobEvent) bool {
		return IsDroppable(e.Type)
	})
	if i < 0 {
		return false
	}
	event := p.buffer[i]
	p.buffer = slices.Delete(p.buffer, i, i+1)
	p.bufferBytes -= estimateEventSize(event)
	p.stats.setBufferSizeLocked(p.bufferBytes)
	p.stats.incEventsDroppedLocked(event.Type)
	p.logDrop(event.Type, "evicted_for_non_droppable")
	return true
}

// --- Logging helpers ---

func (p *BufferedPolicy) logDrop(eventType types.JobEventType, reason string) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("event dropped", map[string]any{
		"event_type": string(eventType),
		"reason":     reason,
		"policy":     string(NameBuffered),
	})
}

func (p *BufferedPolicy) logBufferOverflow(eventType types.JobEventType) {
	if p.logger == nil {
		return
	}
	p.logger.Error("buffer overflow", map[string]any{
		"event_type": string(eventType),
		"policy":     string(NameBuffered),
	})
}

func (p *BufferedPolicy) logFlushFailure(err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"error":  err.Error(),
		"policy": string(NameBuffered),
	})
}

var _ Policy = (*BufferedPolicy)(nil)
