package codec

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/stitcher/iox"
)

// Formats returns the default format list, tried in order by Open.
// tajimaPalette names the threads of Tajima designs.
func Formats(tajimaPalette []string) []Format {
	return []Format{Brother{}, Tajima{Palette: tajimaPalette}}
}

// Open tries each format in turn and returns the first decoder whose
// header matches. Returns ErrUnsupportedFormat if none match.
func Open(r io.ReadSeeker, formats ...Format) (Decoder, error) {
	if len(formats) == 0 {
		formats = Formats(nil)
	}
	for _, f := range formats {
		dec, err := f.Open(r)
		if errors.Is(err, ErrFormatMismatch) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name(), err)
		}
		return dec, nil
	}
	return nil, ErrUnsupportedFormat
}

// File is a decoder bound to an open design file.
type File struct {
	Decoder
	f *os.File
}

// OpenFile opens path and selects its decoder with Open.
func OpenFile(path string, formats ...Format) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := Open(f, formats...)
	if err != nil {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Decoder: dec, f: f}, nil
}

// Close releases the file handle.
func (f *File) Close() error {
	return f.f.Close()
}
