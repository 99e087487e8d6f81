// Package ipc implements length-prefixed msgpack framing for job telemetry.
//
// A telemetry stream is a sequence of frames. Each frame is a 4-byte
// big-endian payload length followed by a msgpack-encoded types.JobEvent.
package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/stitcher/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including length prefix.
	MaxFrameSize = 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorEncode indicates a msgpack encoding error.
	FrameErrorEncode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	case FrameErrorEncode:
		return "encode"
	default:
		return fmt.Sprintf("frame_error(%d)", int(k))
	}
}

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot be read past this error.
// Partial and oversized frames are fatal; a payload that fails to decode
// still leaves the stream aligned on the next frame.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// ReadEvent reads and decodes the next event.
// Returns io.EOF when the stream ends cleanly.
func (d *FrameDecoder) ReadEvent() (*types.JobEvent, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeJobEvent(payload)
}

// DecodeJobEvent decodes a payload as a JobEvent.
func DecodeJobEvent(payload []byte) (*types.JobEvent, error) {
	var event types.JobEvent
	if err := msgpack.Unmarshal(payload, &event); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode job event",
			Err:  err,
		}
	}
	return &event, nil
}

// EncodeJobEvent encodes an event as a complete frame (prefix + payload).
func EncodeJobEvent(event *types.JobEvent) ([]byte, error) {
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorEncode,
			Msg:  "failed to encode job event",
			Err:  err,
		}
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)
	return frame, nil
}

// FrameEncoder writes event frames to a buffered stream.
// Not safe for concurrent use.
type FrameEncoder struct {
	w      *bufio.Writer
	frames int64
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{w: bufio.NewWriter(w)}
}

// WriteEvent encodes and buffers a single event frame.
func (e *FrameEncoder) WriteEvent(event *types.JobEvent) error {
	frame, err := EncodeJobEvent(event)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	e.frames++
	return nil
}

// Flush writes buffered frames to the underlying writer.
func (e *FrameEncoder) Flush() error {
	return e.w.Flush()
}

// Frames returns the number of frames written.
func (e *FrameEncoder) Frames() int64 {
	return e.frames
}
