package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"

	"github.com/pithecene-io/stitcher/iox"
	"github.com/pithecene-io/stitcher/types"
)

// BrotherName is the format name reported by the Brother decoder.
const BrotherName = "brother"

// PES/PEC layout.
const (
	pesHeaderSize   = 12
	pesMagic        = "#PES"
	pesOffsetAt     = 8
	pecSection1Size = 512
	// Section 2 is read up to the width/height fields only. The next 4
	// bytes (PEC+528) are the initial extended jump and are decoded as
	// stitch data.
	pecSection2Size = 16

	pecLabelAt     = 3
	pecLabelSize   = 17
	pecNColorsAt   = 48
	pecPaletteAt   = 49
	pecWidthAt     = 8
	pecHeightAt    = 10
	pecEndMarker   = 0xFF
	pecColorChange = 0xFE
)

// Brother is the Brother PEC delta format as embedded in PES files.
type Brother struct{}

// Name implements Format.
func (Brother) Name() string { return BrotherName }

// Open implements Format.
func (Brother) Open(r io.ReadSeeker) (Decoder, error) {
	var hdr [pesHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil || !bytes.HasPrefix(hdr[:], []byte(pesMagic)) {
		if err := iox.Rewind(r); err != nil {
			return nil, err
		}
		return nil, ErrFormatMismatch
	}

	pecOffset := binary.LittleEndian.Uint32(hdr[pesOffsetAt:])
	if err := iox.SeekTo(r, int64(pecOffset), "pec section"); err != nil {
		return nil, err
	}

	var sec1 [pecSection1Size]byte
	var sec2 [pecSection2Size]byte
	if err := readRecord(r, sec1[:], BrotherName); err != nil {
		return nil, pecHeaderError(err)
	}
	if err := readRecord(r, sec2[:], BrotherName); err != nil {
		return nil, pecHeaderError(err)
	}

	d := &brotherDecoder{
		r:       r,
		palette: append([]byte(nil), sec1[pecPaletteAt:]...),
		design: types.Design{
			Name:   strings.TrimSpace(strings.TrimRight(string(sec1[pecLabelAt:pecLabelAt+pecLabelSize]), "\x00")),
			Format: BrotherName,
			// stored as count minus one
			Threads: uint32(sec1[pecNColorsAt]) + 1,
			Size: types.Point{
				X: float64(int16(binary.LittleEndian.Uint16(sec2[pecWidthAt:]))) / 10,
				Y: float64(int16(binary.LittleEndian.Uint16(sec2[pecHeightAt:]))) / 10,
			},
		},
	}
	d.design.ColorChanges = d.design.Threads - 1
	d.cursor.Defer(types.StopStitch(types.ThreadColor(d.palette[0])))

	return d, nil
}

func pecHeaderError(err error) error {
	if errors.Is(err, io.EOF) {
		return &DecodeError{Kind: DecodeErrorTruncated, Format: BrotherName, Msg: "pec header", Err: io.ErrUnexpectedEOF}
	}
	return err
}

type brotherDecoder struct {
	r       io.Reader
	design  types.Design
	palette []byte
	cursor  Cursor
	buf     [1]byte
}

func (d *brotherDecoder) Design() types.Design { return d.design }

func (d *brotherDecoder) ThreadName(c types.ThreadColor) string {
	return PECThreadName(c)
}

// readByte reads one byte. first marks the start of a record, where a
// clean EOF ends the pattern instead of truncating it.
func (d *brotherDecoder) readByte(first bool) (byte, error) {
	err := readRecord(d.r, d.buf[:], BrotherName)
	if errors.Is(err, io.EOF) && !first {
		return 0, &DecodeError{Kind: DecodeErrorTruncated, Format: BrotherName, Msg: "truncated record", Err: io.ErrUnexpectedEOF}
	}
	return d.buf[0], err
}

// axis decodes one axis value starting with the already-read byte c.
// Extended values also classify the stitch through bits 5 and 4.
func (d *brotherDecoder) axis(c byte, st *types.StitchType) (int, error) {
	if c&0x80 == 0 {
		v := int(c)
		if v > 0x3F {
			v -= 0x80
		}
		return v, nil
	}

	switch {
	case c&0x20 != 0:
		*st = types.StitchTrim
	case c&0x10 != 0:
		*st = types.StitchJump
	default:
		*st = types.StitchNormal
	}

	lo, err := d.readByte(false)
	if err != nil {
		return 0, err
	}
	v := int(c&0x0F)<<8 | int(lo)
	if v > 0x7FF {
		v -= 0x1000
	}
	return v, nil
}

func (d *brotherDecoder) Next() (types.Stitch, error) {
	if s, ok := d.cursor.Take(); ok {
		return s, nil
	}
	if d.cursor.Ended() {
		return types.Stitch{}, io.EOF
	}
	s, err := d.next()
	if err != nil {
		return types.Stitch{}, d.cursor.finish(err)
	}
	return s, nil
}

func (d *brotherDecoder) next() (types.Stitch, error) {

	c, err := d.readByte(true)
	if err != nil {
		return types.Stitch{}, err
	}
	if c == pecEndMarker {
		return types.Stitch{}, io.EOF
	}

	if c == pecColorChange {
		for range 2 {
			if _, err := d.readByte(false); err != nil {
				return types.Stitch{}, err
			}
		}
		return types.StopStitch(d.paletteAt(d.cursor.advanceColor())), nil
	}

	st := types.StitchNormal
	dx, err := d.axis(c, &st)
	if err != nil {
		return types.Stitch{}, err
	}
	c, err = d.readByte(false)
	if err != nil {
		return types.Stitch{}, err
	}
	dy, err := d.axis(c, &st)
	if err != nil {
		return types.Stitch{}, err
	}

	return types.Stitch{
		Type: st,
		Target: types.Point{
			X: float64(dx) / 10,
			Y: float64(-dy) / 10,
		},
	}, nil
}

func (d *brotherDecoder) paletteAt(i int) types.ThreadColor {
	if i < len(d.palette) {
		return types.ThreadColor(d.palette[i])
	}
	return 0
}
