package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/stitcher/types"
)

// balancedTernary splits v into digits for weights 1, 3, 9, 27, 81.
func balancedTernary(t *testing.T, v int) [5]int {
	t.Helper()
	var digits [5]int
	n := v
	for i := range digits {
		switch ((n % 3) + 3) % 3 {
		case 1:
			digits[i] = 1
			n = (n - 1) / 3
		case 2:
			digits[i] = -1
			n = (n + 1) / 3
		default:
			n /= 3
		}
	}
	if n != 0 {
		t.Fatalf("value %d out of range", v)
	}
	return digits
}

// encodeTajima builds a record for (x, y) in tenths of mm using an
// independent weight table.
func encodeTajima(t *testing.T, x, y int, control byte) [3]byte {
	t.Helper()
	// weight index -> (byte, plus bit, minus bit) for each axis
	xBits := [5][3]int{{0, 0, 1}, {1, 0, 1}, {0, 2, 3}, {1, 2, 3}, {2, 2, 3}}
	yBits := [5][3]int{{0, 7, 6}, {1, 7, 6}, {0, 5, 4}, {1, 5, 4}, {2, 5, 4}}

	rec := [3]byte{0, 0, control}
	set := func(bits [5][3]int, digits [5]int) {
		for i, d := range digits {
			switch d {
			case 1:
				rec[bits[i][0]] |= 1 << bits[i][1]
			case -1:
				rec[bits[i][0]] |= 1 << bits[i][2]
			}
		}
	}
	set(xBits, balancedTernary(t, x))
	set(yBits, balancedTernary(t, y))
	return rec
}

func tajimaFile(header string, records ...[3]byte) []byte {
	buf := bytes.Repeat([]byte{' '}, tajimaHeaderSize)
	copy(buf, header)
	for _, r := range records {
		buf = append(buf, r[:]...)
	}
	return buf
}

func openTajima(t *testing.T, data []byte, palette ...string) (Decoder, *bytes.Reader) {
	t.Helper()
	r := bytes.NewReader(data)
	dec, err := Tajima{Palette: palette}.Open(r)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	first, err := dec.Next()
	if err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if first.Type != types.StitchStop || first.Color != 0 || !first.Target.IsZero() {
		t.Fatalf("first stitch = %+v, want synthetic Stop color 0", first)
	}
	return dec, r
}

func TestTajima_DisplacementExhaustive(t *testing.T) {
	const header = "LA:grid\r\x1a"
	var records [][3]byte
	for x := -121; x <= 121; x++ {
		for y := -121; y <= 121; y++ {
			records = append(records, encodeTajima(t, x, y, 0x03))
		}
	}
	dec, _ := openTajima(t, tajimaFile(header, records...))

	for x := -121; x <= 121; x++ {
		for y := -121; y <= 121; y++ {
			s, err := dec.Next()
			if err != nil {
				t.Fatalf("Next() at (%d,%d) error = %v", x, y, err)
			}
			if s.Type != types.StitchNormal {
				t.Fatalf("(%d,%d) type = %v, want normal", x, y, s.Type)
			}
			if s.Target.X != float64(x)/10 || s.Target.Y != float64(y)/10 {
				t.Fatalf("(%d,%d) target = %+v", x, y, s.Target)
			}
		}
	}

	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after data error = %v, want io.EOF", err)
	}
}

func TestTajima_Header(t *testing.T) {
	header := "LA:TestDesign\r" + "ST:0050\r" + "CO:0003\r" + "+X:0100\r" + "-X:0050\r" + "+Y:0080\r" + "-Y:0040\r" + "\x1a"
	r := bytes.NewReader(tajimaFile(header))

	dec, err := Tajima{}.Open(r)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos != 512 {
		t.Errorf("stream position = %d, want 512", pos)
	}

	d := dec.Design()
	if d.Name != "TestDesign" {
		t.Errorf("Name = %q, want TestDesign", d.Name)
	}
	if d.Stitches != 50 || d.ColorChanges != 3 {
		t.Errorf("Stitches/ColorChanges = %d/%d, want 50/3", d.Stitches, d.ColorChanges)
	}
	if d.Max.X != 10.0 || d.Min.X != -5.0 || d.Max.Y != 8.0 || d.Min.Y != -4.0 {
		t.Errorf("extents = min %+v max %+v", d.Min, d.Max)
	}
	if d.Size.X != 15.0 || d.Size.Y != 12.0 {
		t.Errorf("Size = %+v, want {15 12}", d.Size)
	}
}

func TestTajima_HeaderLowerCaseKeys(t *testing.T) {
	r := bytes.NewReader(tajimaFile("LA:x\nst:  12\n\x1a"))
	dec, err := Tajima{}.Open(r)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if dec.Design().Stitches != 12 {
		t.Errorf("Stitches = %d, want 12", dec.Design().Stitches)
	}
}

func TestTajima_Mismatch(t *testing.T) {
	r := bytes.NewReader([]byte("#PES0001 not a dst file"))

	_, err := Tajima{}.Open(r)
	if !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("Open() error = %v, want ErrFormatMismatch", err)
	}
	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos != 0 {
		t.Errorf("stream position = %d, want 0", pos)
	}
}

func TestTajima_Classification(t *testing.T) {
	records := [][3]byte{
		encodeTajima(t, 5, 5, 0x03),  // normal
		encodeTajima(t, 10, 0, 0x83), // jump
		encodeTajima(t, 0, 0, 0xC3),  // color change
		encodeTajima(t, 0, 0, 0x43),  // sequin on
		encodeTajima(t, 1, 1, 0x83),  // sequin eject
		encodeTajima(t, 0, 0, 0x43),  // sequin off
		encodeTajima(t, 2, 0, 0x83),  // jump
		encodeTajima(t, 0, 0, 0xC3),  // color change
		{0x00, 0x00, 0xF3},           // end
		encodeTajima(t, 1, 1, 0x03),  // never read
	}
	dec, _ := openTajima(t, tajimaFile("LA:classes\r\x1a", records...), "Red", "Blue")

	want := []struct {
		typ   types.StitchType
		color types.ThreadColor
		x     float64
	}{
		{types.StitchNormal, 0, 0.5},
		{types.StitchJump, 0, 1.0},
		{types.StitchStop, 1, 0},
		{types.StitchNormal, 0, 0},
		{types.StitchSequinEject, 0, 0.1},
		{types.StitchNormal, 0, 0},
		{types.StitchJump, 0, 0.2},
		{types.StitchStop, 2, 0},
	}

	for i, w := range want {
		s, err := dec.Next()
		if err != nil {
			t.Fatalf("record %d: Next() error = %v", i, err)
		}
		if s.Type != w.typ || s.Color != w.color || s.Target.X != w.x {
			t.Errorf("record %d = %+v, want type %v color %d x %v", i, s, w.typ, w.color, w.x)
		}
	}

	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end marker error = %v, want io.EOF", err)
	}

	if got := dec.ThreadName(1); got != "Blue" {
		t.Errorf("ThreadName(1) = %q, want Blue", got)
	}
	if got := dec.ThreadName(2); got != "None" {
		t.Errorf("ThreadName(2) = %q, want None", got)
	}
}

func TestTajima_EndMaskWinsOverStop(t *testing.T) {
	if got := classifyTajima(0xFF); got != controlEnd {
		t.Errorf("classifyTajima(0xFF) = %v, want end", got)
	}
	if got := classifyTajima(0xC3 | 0x0C); got != controlStop {
		t.Errorf("classifyTajima(0xCF) = %v, want stop", got)
	}
}

func TestTajima_EndMarkerStopsDecoding(t *testing.T) {
	end := [3]byte{0x00, 0x00, 0xF3}
	normal := [3]byte{0x01, 0x00, 0x03}
	dec, _ := openTajima(t, tajimaFile("LA:end\r\x1a", end, normal, normal))
	for i := range 3 {
		if s, err := dec.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("call %d: Next() = %+v, %v, want io.EOF", i, s, err)
		}
	}
}

func TestTajima_Truncated(t *testing.T) {
	data := append(tajimaFile("LA:short\r\x1a"), 0x01, 0x02)
	dec, _ := openTajima(t, data)

	_, err := dec.Next()
	if !IsTruncated(err) {
		t.Fatalf("Next() error = %v, want truncated", err)
	}
	if !IsEndOfPattern(err) {
		t.Error("truncated record should end the pattern")
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after truncation error = %v, want io.EOF", err)
	}
}
