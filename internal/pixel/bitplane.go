package pixel

import "strings"

// Channel selects color channels for bit-plane decoding.
type Channel uint8

const (
	// Red selects the red channel.
	Red Channel = 1 << iota
	// Green selects the green channel.
	Green
	// Blue selects the blue channel.
	Blue

	// RGB selects all three color channels.
	RGB = Red | Green | Blue
)

// BitPlaneOptions controls which bits DecodeBitPlane reads.
type BitPlaneOptions struct {
	// Channels selects the channels read from each pixel, in R, G, B order.
	Channels Channel

	// MaxPixels bounds how many pixels are visited. Zero means every pixel.
	MaxPixels int

	// Stride is the step between visited pixels. Values below 1 mean 1.
	Stride int
}

// DecodeBitPlane reads the least significant bit of the selected channels
// and packs the bits into bytes, most significant bit first.
// A trailing partial byte is discarded.
func DecodeBitPlane(g *Grid, opts BitPlaneOptions) []byte {
	stride := opts.Stride
	if stride < 1 {
		stride = 1
	}

	total := g.Len()
	limit := opts.MaxPixels
	if limit <= 0 || limit > total {
		limit = total
	}

	perPixel := 0
	for _, c := range []Channel{Red, Green, Blue} {
		if opts.Channels&c != 0 {
			perPixel++
		}
	}
	if perPixel == 0 {
		return nil
	}

	out := make([]byte, 0, limit*perPixel/8)
	var current byte
	bits := 0

	push := func(v uint8) {
		current = current<<1 | v&1
		bits++
		if bits == 8 {
			out = append(out, current)
			current = 0
			bits = 0
		}
	}

	visited := 0
	for i := 0; i < total && visited < limit; i += stride {
		o := i * 4
		if opts.Channels&Red != 0 {
			push(g.Pix[o])
		}
		if opts.Channels&Green != 0 {
			push(g.Pix[o+1])
		}
		if opts.Channels&Blue != 0 {
			push(g.Pix[o+2])
		}
		visited++
	}

	return out
}

// IsPrintable reports whether b is printable ASCII, tab, LF or CR.
func IsPrintable(b byte) bool {
	return (b >= 0x20 && b <= 0x7e) || b == '\t' || b == '\n' || b == '\r'
}

// PrintableRuns returns the runs of printable ASCII in data that are at
// least minLen bytes long, in order of appearance.
func PrintableRuns(data []byte, minLen int) []string {
	if minLen < 1 {
		minLen = 1
	}

	var runs []string
	start := -1
	for i, b := range data {
		if IsPrintable(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			runs = append(runs, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		runs = append(runs, string(data[start:]))
	}
	return runs
}

// PrintableText joins PrintableRuns with newlines.
func PrintableText(data []byte, minLen int) string {
	return strings.Join(PrintableRuns(data, minLen), "\n")
}
