package links

import (
	"context"

	"github.com/nao1215/imgguard/internal/pixel"
)

// DefaultBitPlanePixels is the number of leading pixels decoded.
const DefaultBitPlanePixels = 1000

// BitPlaneStrategy decodes the R, G and B least significant bits of the
// first pixels into ASCII and scans it for URLs.
type BitPlaneStrategy struct {
	maxPixels int
}

// NewBitPlaneStrategy creates a BitPlaneStrategy with the default bound.
func NewBitPlaneStrategy() *BitPlaneStrategy {
	return &BitPlaneStrategy{maxPixels: DefaultBitPlanePixels}
}

// Name implements Strategy.
func (s *BitPlaneStrategy) Name() string { return "bit-plane" }

// Extract implements Strategy.
func (s *BitPlaneStrategy) Extract(_ context.Context, in *Input) ([]string, error) {
	if in.Grid == nil {
		return nil, nil
	}
	raw := pixel.DecodeBitPlane(in.Grid, pixel.BitPlaneOptions{
		Channels:  pixel.RGB,
		MaxPixels: s.maxPixels,
	})
	return FindURLs(pixel.PrintableText(raw, 1)), nil
}

var _ Strategy = (*BitPlaneStrategy)(nil)
