// Package types defines the core domain types shared by the decoders,
// the stitch queue, the job state machine and the CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// StitchType classifies a single needle action.
type StitchType uint8

// Stitch types. The numeric values are stable; they are stored in telemetry.
const (
	StitchNormal StitchType = iota
	StitchTrim
	StitchJump
	StitchStop
	StitchSequinEject
)

// String returns the lower-case name of the stitch type.
func (t StitchType) String() string {
	switch t {
	case StitchNormal:
		return "normal"
	case StitchTrim:
		return "trim"
	case StitchJump:
		return "jump"
	case StitchStop:
		return "stop"
	case StitchSequinEject:
		return "sequin_eject"
	default:
		return fmt.Sprintf("stitch_type(%d)", uint8(t))
	}
}

// ThreadColor is a small palette index. Its meaning depends on the
// decoder that produced it (see codec.Decoder.ThreadName).
type ThreadColor uint8

// Point is a planar displacement or coordinate in millimetres.
type Point struct {
	X float64 `json:"x" yaml:"x" msgpack:"x"`
	Y float64 `json:"y" yaml:"y" msgpack:"y"`
}

// IsZero reports whether both components are zero.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Position is an absolute machine position in millimetres.
type Position struct {
	X float64 `json:"x" yaml:"x" msgpack:"x"`
	Y float64 `json:"y" yaml:"y" msgpack:"y"`
	Z float64 `json:"z" yaml:"z" msgpack:"z"`
}

// Stitch is one decoded needle action. Target is relative to the
// previous stitch. Stitches are values; the queue slot owns its copy.
type Stitch struct {
	Type   StitchType
	Color  ThreadColor
	Target Point
}

// StopStitch returns a zero-displacement thread-change marker for color.
func StopStitch(color ThreadColor) Stitch {
	return Stitch{Type: StitchStop, Color: color}
}
