package pixel

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"

	// Register decoders for every format a browser is likely to download.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded grid size. Larger images are rejected
// before allocation to protect against decompression bombs.
const MaxPixels = 50_000_000

var (
	// ErrEmptyImage is returned when Decode receives no bytes.
	ErrEmptyImage = errors.New("empty image data")

	// ErrImageTooLarge is returned when the image dimensions exceed MaxPixels.
	ErrImageTooLarge = errors.New("image dimensions exceed limit")
)

// RGBA is one non-premultiplied pixel.
type RGBA struct {
	R, G, B, A uint8
}

// Grid is a decoded image as a flat row-major RGBA buffer.
// A Grid is never modified after Decode returns, so a single Grid can be
// read by several goroutines.
type Grid struct {
	Width  int
	Height int

	// Pix holds 4 bytes per pixel in R, G, B, A order.
	Pix []uint8

	// Format is the decoder name reported by image.Decode.
	Format string
}

// Decode parses image bytes into a Grid.
func Decode(data []byte) (*Grid, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	grid := FromImage(img)
	grid.Format = format
	return grid, nil
}

// FromImage converts any image.Image into a Grid.
func FromImage(img image.Image) *Grid {
	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return &Grid{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    nrgba.Pix,
	}
}

// Image returns a read-only image.Image view of the grid without copying.
func (g *Grid) Image() image.Image {
	return &image.NRGBA{
		Pix:    g.Pix,
		Stride: 4 * g.Width,
		Rect:   image.Rect(0, 0, g.Width, g.Height),
	}
}

// Len returns the number of pixels in the grid.
func (g *Grid) Len() int {
	return g.Width * g.Height
}

// At returns the pixel at row-major index i.
func (g *Grid) At(i int) RGBA {
	o := i * 4
	return RGBA{R: g.Pix[o], G: g.Pix[o+1], B: g.Pix[o+2], A: g.Pix[o+3]}
}

// Stride returns the step between sampled pixels when at most limit
// pixels should be visited: max(1, Len()/limit).
func (g *Grid) Stride(limit int) int {
	if limit <= 0 {
		return 1
	}
	stride := g.Len() / limit
	if stride < 1 {
		stride = 1
	}
	return stride
}

// Sample returns up to limit pixels taken every Stride(limit) pixels,
// starting at index 0. The result is deterministic for a given grid.
func (g *Grid) Sample(limit int) []RGBA {
	stride := g.Stride(limit)
	total := g.Len()

	capacity := total/stride + 1
	if limit > 0 && capacity > limit {
		capacity = limit
	}
	samples := make([]RGBA, 0, capacity)
	for i := 0; i < total; i += stride {
		if limit > 0 && len(samples) >= limit {
			break
		}
		samples = append(samples, g.At(i))
	}
	return samples
}
