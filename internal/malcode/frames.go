package malcode

import (
	"bytes"
	"context"
	"image/gif"
	"strings"

	"github.com/nao1215/imgguard/internal/metadata"
	"github.com/nao1215/imgguard/internal/pixel"
)

// DefaultMaxFrames bounds how many frames after the first FrameStrategy
// decodes. Longer animations only contribute their extension blocks.
const DefaultMaxFrames = 32

// FrameStrategy inspects multi-frame containers. For GIF streams it reads
// comment, plain-text and application extensions from every frame and
// decodes the blue bit plane of each frame after the first. Other formats
// yield no text.
type FrameStrategy struct {
	maxFrames int
	maxPixels int
}

// NewFrameStrategy creates a FrameStrategy with the default bounds.
func NewFrameStrategy() *FrameStrategy {
	return &FrameStrategy{
		maxFrames: DefaultMaxFrames,
		maxPixels: DefaultBitPlanePixels,
	}
}

// Name implements TextExtractionStrategy.
func (s *FrameStrategy) Name() string { return "frame" }

// Extract implements TextExtractionStrategy.
func (s *FrameStrategy) Extract(ctx context.Context, in *Input) (string, error) {
	if !pixel.IsMultiFrame(in.Data) {
		return "", nil
	}

	// A damaged stream still contributes whatever blocks were read.
	info, _ := metadata.WalkGIF(in.Data)
	texts := metadata.Values(info.Fields())

	if info.Frames > 1 && s.decodable(in.Data, info.Frames) {
		texts = append(texts, s.frameText(ctx, in.Data)...)
	}
	return strings.Join(texts, "\n"), nil
}

// decodable reports whether every frame can be decoded within the frame
// and pixel bounds. gif.DecodeAll allocates all frames before returning.
func (s *FrameStrategy) decodable(data []byte, frames int) bool {
	if frames > s.maxFrames+1 {
		return false
	}
	cfg, err := gif.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width*cfg.Height*frames <= pixel.MaxPixels
}

// frameText decodes frames after the first and returns their bit-plane text.
func (s *FrameStrategy) frameText(ctx context.Context, data []byte) []string {
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	var texts []string
	for i, frame := range anim.Image {
		if i == 0 {
			continue
		}
		if i > s.maxFrames || ctx.Err() != nil {
			break
		}
		raw := pixel.DecodeBitPlane(pixel.FromImage(frame), pixel.BitPlaneOptions{
			Channels:  pixel.Blue,
			MaxPixels: s.maxPixels,
		})
		if text := pixel.PrintableText(raw, MinTextRun); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

var _ TextExtractionStrategy = (*FrameStrategy)(nil)
