// Package policy defines how job telemetry is ingested and persisted.
package policy

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/pithecene-io/stitcher/types"
)

// Policy defines the telemetry ingestion interface.
// Policies control buffering, dropping and persistence behavior.
//
//   - May drop: stitch, jump
//   - Must NOT drop: job_started, trim, thread_change, sequin_eject,
//     trigger_error, job_completed, job_canceled
//   - Policy must not alter event shapes
type Policy interface {
	// IngestEvent handles an event.
	// May drop droppable event types; returns an error if a
	// non-droppable event cannot be accepted.
	IngestEvent(ctx context.Context, event *types.JobEvent) error

	// Flush flushes any buffered data.
	// Called on the terminal event and on runtime termination.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Name identifies a policy in configuration.
type Name string

// Policy names.
const (
	NameStrict    Name = "strict"
	NameBuffered  Name = "buffered"
	NameStreaming Name = "streaming"
	NameNoop      Name = "noop"
)

// Config selects and configures a policy.
type Config struct {
	Name      Name
	Buffered  BufferedConfig
	Streaming StreamingConfig
}

// New builds the policy named by cfg over sink.
func New(sink Sink, cfg Config) (Policy, error) {
	switch cfg.Name {
	case NameStrict, "":
		return NewStrictPolicy(sink), nil
	case NameBuffered:
		return NewBufferedPolicy(sink, cfg.Buffered)
	case NameStreaming:
		return NewStreamingPolicy(sink, cfg.Streaming)
	case NameNoop:
		return NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", cfg.Name)
	}
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalEvents is the total number of events received.
	TotalEvents int64 `json:"total_events" yaml:"total_events"`
	// EventsPersisted is the number of events persisted.
	EventsPersisted int64 `json:"events_persisted" yaml:"events_persisted"`
	// EventsDropped is the total number of events dropped.
	EventsDropped int64 `json:"events_dropped" yaml:"events_dropped"`
	// DroppedByType maps event types to drop counts.
	DroppedByType map[types.JobEventType]int64 `json:"dropped_by_type,omitempty" yaml:"dropped_by_type,omitempty"`
	// BufferSize is the current buffer size in bytes (if buffered).
	BufferSize int64 `json:"buffer_size" yaml:"buffer_size"`
	// FlushCount is the number of flush operations.
	FlushCount int64 `json:"flush_count" yaml:"flush_count"`
	// Errors is the count of sink errors encountered.
	Errors int64 `json:"errors" yaml:"errors"`
}

// IsDroppable returns true if the event type may be dropped by policy.
func IsDroppable(eventType types.JobEventType) bool {
	return eventType.IsDroppable()
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy uses the locking methods
//   - BufferedPolicy and StreamingPolicy use the Locked methods while
//     holding their own mu, keeping buffer state and counters consistent.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			DroppedByType: make(map[types.JobEventType]int64),
		},
	}
}

func (r *statsRecorder) incTotalEvents() {
	r.mu.Lock()
	r.stats.TotalEvents++
	r.mu.Unlock()
}

func (r *statsRecorder) incEventsPersisted(n int64) {
	r.mu.Lock()
	r.stats.EventsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.stats.BufferSize)
}

// --- Locked methods. Caller must hold the owning policy's mu. ---

func (r *statsRecorder) incTotalEventsLocked() {
	r.stats.TotalEvents++
}

func (r *statsRecorder) incEventsPersistedLocked(n int64) {
	r.stats.EventsPersisted += n
}

func (r *statsRecorder) incEventsDroppedLocked(eventType types.JobEventType) {
	r.stats.EventsDropped++
	r.stats.DroppedByType[eventType]++
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) setBufferSizeLocked(bytes int64) {
	r.stats.BufferSize = bytes
}

func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	s.DroppedByType = maps.Clone(r.stats.DroppedByType)
	return s
}

// estimateEventSize returns a rough size in bytes for buffer accounting.
func estimateEventSize(event *types.JobEvent) int64 {
	size := int64(120)
	size += int64(len(event.Payload) * 24)
	return size
}
