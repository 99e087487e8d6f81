package codec

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/pithecene-io/stitcher/iox"
	"github.com/pithecene-io/stitcher/types"
)

// TajimaName is the format name reported by the Tajima decoder.
const TajimaName = "tajima"

const (
	// tajimaHeaderSize is the fixed offset of the first stitch record.
	tajimaHeaderSize = 512
	tajimaRecordSize = 3
	tajimaMagic      = "LA:"
	// asciiEOF terminates the header metadata.
	asciiEOF = 0x1A
	// unnamedThread is reported for colors outside the configured palette.
	unnamedThread = "None"
)

// bitWeight adds weight to an axis when bit is set in record byte idx.
type bitWeight struct {
	idx    int
	bit    uint
	weight int
}

// Balanced ternary weights; each axis covers [-121, 121].
var (
	tajimaX = [...]bitWeight{
		{2, 2, 81}, {2, 3, -81},
		{1, 2, 27}, {1, 3, -27},
		{0, 2, 9}, {0, 3, -9},
		{1, 0, 3}, {1, 1, -3},
		{0, 0, 1}, {0, 1, -1},
	}
	tajimaY = [...]bitWeight{
		{2, 5, 81}, {2, 4, -81},
		{1, 5, 27}, {1, 4, -27},
		{0, 5, 9}, {0, 4, -9},
		{1, 7, 3}, {1, 6, -3},
		{0, 7, 1}, {0, 6, -1},
	}
)

func sumWeights(rec [tajimaRecordSize]byte, table []bitWeight) int {
	v := 0
	for _, w := range table {
		if rec[w.idx]&(1<<w.bit) != 0 {
			v += w.weight
		}
	}
	return v
}

// controlClass is the classification of a record's control byte.
type controlClass uint8

const (
	controlNormal controlClass = iota
	controlEnd
	controlStop
	controlSequinToggle
	controlJump
)

// tajimaControl is matched top to bottom; the first rule whose mask is
// fully set in b2 wins.
var tajimaControl = [...]struct {
	mask  byte
	class controlClass
}{
	{0b11110011, controlEnd},
	{0b11000011, controlStop},
	{0b01000011, controlSequinToggle},
	{0b10000011, controlJump},
}

func classifyTajima(b2 byte) controlClass {
	for _, rule := range tajimaControl {
		if b2&rule.mask == rule.mask {
			return rule.class
		}
	}
	return controlNormal
}

// Tajima is the Tajima bit-field format.
type Tajima struct {
	// Palette names the threads of a design. Tajima files carry no
	// palette, so names come from configuration. Index 0 is the first
	// thread; each color change advances the index.
	Palette []string
}

// Name implements Format.
func (Tajima) Name() string { return TajimaName }

// Open implements Format.
func (t Tajima) Open(r io.ReadSeeker) (Decoder, error) {
	hdr := make([]byte, tajimaHeaderSize)
	n, err := io.ReadFull(r, hdr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Kind: DecodeErrorRead, Format: TajimaName, Msg: "read header", Err: err}
	}
	hdr = hdr[:n]

	if !bytes.HasPrefix(hdr, []byte(tajimaMagic)) {
		if err := iox.Rewind(r); err != nil {
			return nil, err
		}
		return nil, ErrFormatMismatch
	}

	d := &tajimaDecoder{
		r:       r,
		palette: t.Palette,
		design:  parseTajimaHeader(hdr[len(tajimaMagic):]),
	}

	if err := iox.SeekTo(r, tajimaHeaderSize, "stitch data"); err != nil {
		return nil, err
	}

	d.cursor.Defer(types.StopStitch(0))
	return d, nil
}

// parseTajimaHeader reads the design name line and the KEY:value lines
// that follow it, up to the end-of-header byte.
func parseTajimaHeader(hdr []byte) types.Design {
	design := types.Design{Format: TajimaName}

	if i := bytes.IndexByte(hdr, asciiEOF); i >= 0 {
		hdr = hdr[:i]
	}
	lines := strings.FieldsFunc(string(hdr), func(r rune) bool {
		return r == '\r' || r == '\n'
	})
	if len(lines) == 0 {
		return design
	}
	design.Name = strings.TrimSpace(lines[0])

	for _, line := range lines[1:] {
		line = strings.ToUpper(line)
		if len(line) < 3 {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(line[3:]), 64)
		if err != nil {
			continue
		}
		switch line[:3] {
		case "ST:":
			design.Stitches = uint32(value)
		case "CO:":
			design.ColorChanges = uint32(value)
		case "+X:":
			design.Max.X = value / 10
		case "-X:":
			design.Min.X = -value / 10
		case "+Y:":
			design.Max.Y = value / 10
		case "-Y:":
			design.Min.Y = -value / 10
		}
	}

	design.Size = types.Point{X: design.Max.X - design.Min.X, Y: design.Max.Y - design.Min.Y}
	return design
}

type tajimaDecoder struct {
	r       io.Reader
	design  types.Design
	palette []string
	cursor  Cursor
}

func (d *tajimaDecoder) Design() types.Design { return d.design }

func (d *tajimaDecoder) ThreadName(c types.ThreadColor) string {
	if int(c) < len(d.palette) && d.palette[c] != "" {
		return d.palette[c]
	}
	return unnamedThread
}

func (d *tajimaDecoder) Next() (types.Stitch, error) {
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

func (d *tajimaDecoder) next() (types.Stitch, error) {

	var rec [tajimaRecordSize]byte
	if err := readRecord(d.r, rec[:], TajimaName); err != nil {
		return types.Stitch{}, err
	}

	s := types.Stitch{
		Target: types.Point{
			X: float64(sumWeights(rec, tajimaX[:])) / 10,
			Y: float64(sumWeights(rec, tajimaY[:])) / 10,
		},
	}

	switch classifyTajima(rec[2]) {
	case controlEnd:
		return types.Stitch{}, io.EOF
	case controlStop:
		s.Type = types.StitchStop
		s.Color = types.ThreadColor(d.cursor.advanceColor())
	case controlSequinToggle:
		d.cursor.toggleSequin()
		s.Type = types.StitchNormal
	case controlJump:
		if d.cursor.sequin {
			s.Type = types.StitchSequinEject
		} else {
			s.Type = types.StitchJump
		}
	default:
		s.Type = types.StitchNormal
	}

	return s, nil
}
