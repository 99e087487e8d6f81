package codec

import (
	"fmt"

	"github.com/pithecene-io/stitcher/types"
)

// PECThread is one entry of the fixed PEC thread chart.
type PECThread struct {
	Name    string
	R, G, B uint8
}

// pecThreads is indexed by the palette index stored in PEC files.
var pecThreads = [...]PECThread{
	{"Undefined", 220, 220, 220},
	{"Prussian Blue", 26, 10, 148},
	{"Blue", 15, 117, 255},
	{"Teal Green", 0, 147, 76},
	{"Corn Flower Blue", 186, 189, 254},
	{"Red", 236, 0, 0},
	{"Reddish Brown", 228, 153, 90},
	{"Magenta", 204, 72, 171},
	{"Light Lilac", 253, 196, 250},
	{"Lilac", 221, 132, 205},
	{"Mint Green", 107, 211, 138},
	{"Deep Gold", 228, 169, 69},
	{"Orange", 255, 189, 66},
	{"Yellow", 255, 230, 0},
	{"Lime Green", 108, 217, 0},
	{"Brass", 193, 169, 65},
	{"Silver", 181, 173, 151},
	{"Russet Brown", 186, 156, 95},
	{"Cream Brown", 250, 245, 158},
	{"Pewter", 128, 128, 128},
	{"Black", 0, 0, 0},
	{"Ultramarine", 0, 28, 223},
	{"Royal Purple", 223, 0, 184},
	{"Dark Gray", 98, 98, 98},
	{"Dark Brown", 105, 38, 13},
	{"Deep Rose", 255, 0, 96},
	{"Light Brown", 191, 130, 0},
	{"Salmon Pink", 243, 145, 120},
	{"Vermillion", 255, 104, 5},
	{"White", 240, 240, 240},
	{"Violet", 200, 50, 205},
	{"Seacrest", 176, 191, 155},
	{"Sky Blue", 101, 191, 235},
	{"Pumpkin", 255, 186, 4},
	{"Cream Yellow", 255, 240, 108},
	{"Khaki", 254, 202, 21},
	{"Clay Brown", 243, 129, 1},
	{"Leaf Green", 55, 169, 35},
	{"Peacock Blue", 35, 70, 95},
	{"Gray", 166, 166, 149},
	{"Warm Gray", 206, 191, 166},
	{"Dark Olive", 150, 170, 2},
	{"Linen", 255, 227, 198},
	{"Pink", 255, 153, 215},
	{"Deep Green", 0, 112, 4},
	{"Lavender", 237, 204, 251},
	{"Wisteria Violet", 192, 137, 216},
	{"Beige", 231, 217, 180},
	{"Carmine", 233, 14, 134},
	{"Amber Red", 207, 104, 41},
	{"Olive Green", 64, 134, 21},
	{"Dark Fuschia", 219, 23, 151},
	{"Tangerine", 255, 167, 4},
	{"Light Blue", 185, 255, 255},
	{"Emerald Green", 34, 137, 39},
	{"Purple", 182, 18, 205},
	{"Moss Green", 0, 170, 0},
	{"Flesh Pink", 254, 169, 220},
	{"Harvest Gold", 254, 213, 16},
	{"Electric Blue", 0, 151, 223},
	{"Lemon Yellow", 255, 255, 132},
	{"Fresh Green", 207, 231, 116},
	{"Applique Material", 255, 200, 100},
	{"Applique Position", 255, 200, 200},
	{"Applique", 255, 200, 200},
}

// PECThreadFor returns the chart entry for c. Indices past the chart map to
// entry 0 ("Undefined").
func PECThreadFor(c types.ThreadColor) PECThread {
	if int(c) >= len(pecThreads) {
		return pecThreads[0]
	}
	return pecThreads[c]
}

// PECThreadName returns the thread name for c.
func PECThreadName(c types.ThreadColor) string {
	return PECThreadFor(c).Name
}

// Hex returns the thread color as a "#rrggbb" string.
func (t PECThread) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", t.R, t.G, t.B)
}
