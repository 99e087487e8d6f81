package ipc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pithecene-io/stitcher/iox"
	"github.com/pithecene-io/stitcher/types"
)

// StreamSink writes event batches as frames to a stream.
// Satisfies policy.Sink.
type StreamSink struct {
	mu     sync.Mutex
	enc    *FrameEncoder
	closer io.Closer
	closed bool
}

// NewStreamSink wraps w. If w is an io.Closer it is closed by Close.
func NewStreamSink(w io.Writer) *StreamSink {
	s := &StreamSink{enc: NewFrameEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateFileSink creates (or truncates) path and returns a sink writing to it.
func CreateFileSink(path string) (*StreamSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create events file: %w", err)
	}
	return NewStreamSink(f), nil
}

// WriteEvents writes the batch in order and flushes it.
func (s *StreamSink) WriteEvents(ctx context.Context, events []*types.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("write events: sink closed")
	}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.WriteEvent(ev); err != nil {
			return err
		}
	}
	return s.enc.Flush()
}

// Frames returns the number of frames written.
func (s *StreamSink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Frames()
}

// Close flushes and closes the underlying stream. Idempotent.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	err := s.enc.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadFile decodes every event in a telemetry file.
// The first frame error stops decoding; events read so far are returned with it.
func ReadFile(path string) ([]*types.JobEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer iox.DiscardClose(f)

	var events []*types.JobEvent
	dec := NewFrameDecoder(bufio.NewReader(f))
	for {
		ev, err := dec.ReadEvent()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
