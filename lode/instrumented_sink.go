package lode

import (
	"context"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/policy"
	"github.com/pithecene-io/stitcher/types"
)

// InstrumentedSink wraps a policy.Sink and records write metrics.
// Each WriteEvents call increments lode_write_success or lode_write_failure.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteEvents delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteEvents(ctx context.Context, events []*types.JobEvent) error {
	err := s.inner.WriteEvents(ctx, events)
	if err != nil {
		s.collector.IncLodeWriteFailure()
	} else {
		s.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ policy.Sink = (*InstrumentedSink)(nil)
