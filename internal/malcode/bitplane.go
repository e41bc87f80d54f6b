package malcode

import (
	"context"

	"github.com/nao1215/imgguard/internal/pixel"
)

const (
	// DefaultBitPlanePixels bounds the pixels read by BitPlaneStrategy.
	DefaultBitPlanePixels = 10_000

	// MinTextRun is the shortest printable run kept as candidate text.
	MinTextRun = 4
)

// BitPlaneStrategy decodes the blue channel's least significant bits of
// the first pixels and keeps the printable ASCII runs.
type BitPlaneStrategy struct {
	maxPixels int
}

// NewBitPlaneStrategy creates a BitPlaneStrategy with the default bound.
func NewBitPlaneStrategy() *BitPlaneStrategy {
	return &BitPlaneStrategy{maxPixels: DefaultBitPlanePixels}
}

// Name implements TextExtractionStrategy.
func (s *BitPlaneStrategy) Name() string { return "bit-plane" }

// Extract implements TextExtractionStrategy.
func (s *BitPlaneStrategy) Extract(_ context.Context, in *Input) (string, error) {
	if in.Grid == nil {
		return "", nil
	}
	raw := pixel.DecodeBitPlane(in.Grid, pixel.BitPlaneOptions{
		Channels:  pixel.Blue,
		MaxPixels: s.maxPixels,
	})
	return pixel.PrintableText(raw, MinTextRun), nil
}

var _ TextExtractionStrategy = (*BitPlaneStrategy)(nil)
