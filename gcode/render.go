// Package gcode renders a stitch stream as relative-mode g-code for
// previewing a design. The output is never executed by the controller.
package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/types"
)

// Stats counts what Render wrote.
type Stats struct {
	Moves         int
	Jumps         int
	Trims         int
	ThreadChanges int
	SequinEjects  int
	// Truncated is set when the pattern ended on a partial record.
	Truncated bool
}

// Render reads every stitch from dec and writes g-code to w.
// feedrate is in mm/min. On a read error the lines rendered so far are
// still written, without the closing M30.
func Render(w io.Writer, dec codec.Decoder, feedrate float64) (Stats, error) {
	var st Stats
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "G17G21G91")
	fmt.Fprintf(bw, "F%d\n", int64(feedrate))

	motion := ""
	for {
		s, err := dec.Next()
		if err != nil {
			if !codec.IsEndOfPattern(err) {
				return st, errors.Join(fmt.Errorf("decode: %w", err), bw.Flush())
			}
			st.Truncated = codec.IsTruncated(err)
			break
		}

		switch s.Type {
		case types.StitchStop:
			st.ThreadChanges++
			fmt.Fprintf(bw, "T%d (MSG,%s)\n", s.Color, dec.ThreadName(s.Color))
			continue
		case types.StitchSequinEject:
			st.SequinEjects++
			continue
		}

		word := "G1"
		if s.Type == types.StitchJump {
			word = "G0"
			st.Jumps++
		} else {
			st.Moves++
		}

		var line strings.Builder
		if word != motion || s.Target.IsZero() {
			line.WriteString(word)
			motion = word
		}
		if s.Target.X != 0 {
			line.WriteString("X" + FormatCoord(s.Target.X))
		}
		if s.Target.Y != 0 {
			line.WriteString("Y" + FormatCoord(s.Target.Y))
		}
		fmt.Fprintln(bw, line.String())

		if s.Type == types.StitchTrim {
			st.Trims++
			fmt.Fprintln(bw, "M0 (MSG,Trim thread)")
		}
	}

	fmt.Fprintln(bw, "M30")
	return st, bw.Flush()
}

// FormatCoord formats v with three decimals and trailing zeros removed.
func FormatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
