// Package codec decodes embroidery design files into a stream of stitches.
//
// Two formats are supported: the Tajima bit-field format (.dst) and the
// Brother PEC delta format embedded in .pes files. Both decoders share the
// Decoder contract and both emit a thread-color Stop before the first
// motion of a design.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/stitcher/types"
)

// Decoder produces one stitch per call from an opened design file.
type Decoder interface {
	// Design returns the header metadata read when the file was opened.
	Design() types.Design
	// Next returns the next stitch.
	//
	// Errors:
	//   - io.EOF: the end-of-pattern marker (or end of file) was reached
	//   - *DecodeError with Kind=DecodeErrorTruncated: partial record at end of file
	//   - *DecodeError with Kind=DecodeErrorRead: the underlying reader failed
	Next() (types.Stitch, error)
	// ThreadName maps a stitch color to a human-readable thread name.
	ThreadName(c types.ThreadColor) string
}

// Format validates a file header and returns a Decoder positioned at the
// first stitch record.
type Format interface {
	// Name returns the short format name ("tajima", "brother").
	Name() string
	// Open validates the header of r. On header mismatch the stream is
	// rewound to offset 0 and ErrFormatMismatch is returned.
	Open(r io.ReadSeeker) (Decoder, error)
}

var (
	// ErrFormatMismatch is returned by Format.Open when the header does not
	// belong to the format. The caller may try the next format.
	ErrFormatMismatch = errors.New("format mismatch")
	// ErrUnsupportedFormat is returned by Open when no format accepts the file.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// DecodeErrorKind classifies decode errors.
type DecodeErrorKind int

const (
	// DecodeErrorTruncated indicates fewer bytes than a full record.
	DecodeErrorTruncated DecodeErrorKind = iota
	// DecodeErrorRead indicates an I/O failure of the underlying reader.
	DecodeErrorRead
)

// DecodeError represents a stitch decoding error.
type DecodeError struct {
	Kind DecodeErrorKind
	// Format is the name of the decoder that failed.
	Format string
	Msg    string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Format, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTruncated returns true if err is a truncated-record DecodeError.
func IsTruncated(err error) bool {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Kind == DecodeErrorTruncated
	}
	return false
}

// IsEndOfPattern returns true if err ends the stitch stream gracefully:
// a clean end marker or a truncated final record.
func IsEndOfPattern(err error) bool {
	return errors.Is(err, io.EOF) || IsTruncated(err)
}

// readRecord reads exactly len(buf) bytes of one record.
// A clean EOF before the first byte is returned as io.EOF.
func readRecord(r io.Reader, buf []byte, format string) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &DecodeError{Kind: DecodeErrorTruncated, Format: format, Msg: "truncated record", Err: err}
	default:
		return &DecodeError{Kind: DecodeErrorRead, Format: format, Msg: "read failed", Err: err}
	}
}
