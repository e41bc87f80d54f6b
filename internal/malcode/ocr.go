package malcode

import (
	"context"

	"github.com/nao1215/imgguard/internal/pixel"
)

// OCREngine recognizes visible text in an image.
type OCREngine interface {
	Recognize(ctx context.Context, grid *pixel.Grid) (string, error)
}

// NoopOCR is the default OCREngine. It never finds text.
type NoopOCR struct{}

// Recognize implements OCREngine.
func (NoopOCR) Recognize(context.Context, *pixel.Grid) (string, error) {
	return "", nil
}

// OCRStrategy extracts visible text through an OCREngine.
type OCRStrategy struct {
	engine OCREngine
}

// NewOCRStrategy wraps engine. A nil engine behaves like NoopOCR.
func NewOCRStrategy(engine OCREngine) *OCRStrategy {
	if engine == nil {
		engine = NoopOCR{}
	}
	return &OCRStrategy{engine: engine}
}

// Name implements TextExtractionStrategy.
func (s *OCRStrategy) Name() string { return "OCR" }

// Extract implements TextExtractionStrategy.
func (s *OCRStrategy) Extract(ctx context.Context, in *Input) (string, error) {
	if in.Grid == nil {
		return "", nil
	}
	return s.engine.Recognize(ctx, in.Grid)
}

var _ TextExtractionStrategy = (*OCRStrategy)(nil)
