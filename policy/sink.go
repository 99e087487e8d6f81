package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/stitcher/types"
)

// Sink abstracts persistence for policies.
// Implementations write to storage, a frame stream, or stub for testing.
//
// Methods are batch-oriented to support both strict (batch of 1) and
// buffered policies.
type Sink interface {
	// WriteEvents persists a batch of events.
	// Must preserve ordering within the batch.
	WriteEvents(ctx context.Context, events []*types.JobEvent) error

	// Close releases any resources held by the sink.
	Close() error
}

// MultiSink fans a batch out to several sinks in order.
// The first error stops the fan-out.
type MultiSink []Sink

// WriteEvents writes the batch to each sink.
func (m MultiSink) WriteEvents(ctx context.Context, events []*types.JobEvent) error {
	for _, s := range m {
		if err := s.WriteEvents(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StubSink is a test sink that accepts writes without persisting.
type StubSink struct {
	mu sync.Mutex

	// EventsWritten is the total count of events written.
	EventsWritten int64
	// EventBatches is the number of WriteEvents calls.
	EventBatches int64
	// Closed indicates whether Close was called.
	Closed bool

	// WrittenEvents stores all written events for inspection.
	WrittenEvents []*types.JobEvent

	// ErrorOnWrite, if non-nil, is returned by WriteEvents.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteEvents records the events without persisting.
func (s *StubSink) WriteEvents(_ context.Context, events []*types.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.EventBatches++
	s.EventsWritten += int64(len(events))
	s.WrittenEvents = append(s.WrittenEvents, events...)
	return nil
}

// SetError sets or clears the write error.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	s.ErrorOnWrite = err
	s.mu.Unlock()
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Events returns a copy of the written events.
func (s *StubSink) Events() []*types.JobEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.JobEvent(nil), s.WrittenEvents...)
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		EventsWritten: s.EventsWritten,
		EventBatches:  s.EventBatches,
		Closed:        s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	EventsWritten int64
	EventBatches  int64
	Closed        bool
}
