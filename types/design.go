package types

// Design is the header metadata a decoder extracts when a file is opened.
// Fields the format does not carry are left zero.
type Design struct {
	// Name is the design label stored in the file header.
	Name string `json:"name" yaml:"name"`
	// Format is the codec name ("tajima" or "brother").
	Format string `json:"format" yaml:"format"`
	// Stitches is the stitch count declared by the header.
	Stitches uint32 `json:"stitches" yaml:"stitches"`
	// ColorChanges is the color change count declared by the header.
	ColorChanges uint32 `json:"color_changes" yaml:"color_changes"`
	// Threads is the number of palette entries declared by the header.
	Threads uint32 `json:"threads" yaml:"threads"`
	// Min and Max are the declared extents in millimetres.
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
	// Size is the declared width and height in millimetres.
	Size Point `json:"size" yaml:"size"`
}
