// Package iox provides small I/O helpers for design files and cleanup.
package iox

import (
	"fmt"
	"io"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c, for t.Cleanup.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// Rewind seeks r back to offset 0 so another format can probe it.
func Rewind(r io.Seeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	return nil
}

// SeekTo positions r at the absolute offset off. what names the
// section being located and is used in the error message.
func SeekTo(r io.Seeker, off int64, what string) error {
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %s: %w", what, err)
	}
	return nil
}
