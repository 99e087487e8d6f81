package codec

import "github.com/pithecene-io/stitcher/types"

// Cursor is the per-file decoder state carried between records.
// It is created when a file is opened and never shared across files.
type Cursor struct {
	pending    types.Stitch
	hasPending bool

	// color is the running palette index, advanced on each color change.
	color int
	// sequin is the Tajima sequin-mode toggle.
	sequin bool
	// ended latches once the pattern is over; no record is read after it.
	ended bool
}

// Defer queues a synthetic stitch to be emitted before any stream read.
func (c *Cursor) Defer(s types.Stitch) {
	c.pending = s
	c.hasPending = true
}

// Take returns the deferred stitch, if any, and clears the slot.
func (c *Cursor) Take() (types.Stitch, bool) {
	if !c.hasPending {
		return types.Stitch{}, false
	}
	c.hasPending = false
	return c.pending, true
}

// Pending reports whether a synthetic stitch is waiting.
func (c *Cursor) Pending() bool {
	return c.hasPending
}

// Ended reports whether the end of the pattern has been reached.
func (c *Cursor) Ended() bool {
	return c.ended
}

// finish latches the end of the pattern when err marks it and returns err.
func (c *Cursor) finish(err error) error {
	if IsEndOfPattern(err) {
		c.ended = true
	}
	return err
}

// advanceColor moves the palette cursor forward and returns the new index.
func (c *Cursor) advanceColor() int {
	c.color++
	return c.color
}

// toggleSequin flips sequin mode and returns the new value.
func (c *Cursor) toggleSequin() bool {
	c.sequin = !c.sequin
	return c.sequin
}
