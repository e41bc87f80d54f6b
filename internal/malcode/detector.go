package malcode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/imgguard/internal/model"
	"github.com/nao1215/imgguard/internal/pixel"
	"github.com/nao1215/imgguard/internal/signature"
)

// Input is what an extraction strategy reads. Grid is nil when the bytes
// could not be decoded as an image.
type Input struct {
	Data []byte
	Grid *pixel.Grid
}

// TextExtractionStrategy pulls candidate text out of an image.
// Returning "" means nothing was found; it is not an error.
type TextExtractionStrategy interface {
	Name() string
	Extract(ctx context.Context, in *Input) (string, error)
}

// Matcher finds the first signature matching a text.
type Matcher interface {
	Match(text string) (signature.Entry, bool)
}

// Detector runs extraction strategies in order and stops at the first
// text that matches a signature.
type Detector struct {
	strategies []TextExtractionStrategy
	matcher    Matcher
	logger     *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithStrategies replaces the default strategies.
func WithStrategies(strategies ...TextExtractionStrategy) Option {
	return func(d *Detector) {
		d.strategies = strategies
	}
}

// WithMatcher replaces the default signature table.
func WithMatcher(m Matcher) Option {
	return func(d *Detector) {
		d.matcher = m
	}
}

// WithOCREngine replaces the default no-op OCR engine while keeping the
// other default strategies.
func WithOCREngine(engine OCREngine) Option {
	return func(d *Detector) {
		for i, s := range d.strategies {
			if _, ok := s.(*OCRStrategy); ok {
				d.strategies[i] = NewOCRStrategy(engine)
			}
		}
	}
}

// DefaultStrategies returns OCR (no-op engine), bit-plane and frame
// extraction, in that order.
func DefaultStrategies() []TextExtractionStrategy {
	return []TextExtractionStrategy{
		NewOCRStrategy(NoopOCR{}),
		NewBitPlaneStrategy(),
		NewFrameStrategy(),
	}
}

// NewDetector creates a Detector using the built-in signature table.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		strategies: DefaultStrategies(),
		matcher:    signature.Default(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect extracts text with each strategy and returns the first signature
// match. Strategy errors are logged and the next strategy runs.
func (d *Detector) Detect(ctx context.Context, data []byte) (model.Detection, error) {
	return d.DetectGrid(ctx, data, d.decode(data))
}

// DetectGrid is Detect over pixels the caller already decoded from data.
// A nil grid leaves the pixel strategies with nothing to read.
func (d *Detector) DetectGrid(ctx context.Context, data []byte, grid *pixel.Grid) (model.Detection, error) {
	in := &Input{Data: data, Grid: grid}

	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return model.NoDetection, err
		}

		text, err := s.Extract(ctx, in)
		if err != nil {
			d.logger.Warn("text extraction failed", "strategy", s.Name(), "error", err)
			continue
		}
		if text == "" {
			continue
		}

		entry, ok := d.matcher.Match(text)
		if !ok {
			continue
		}

		d.logger.Debug("malicious code signature matched", "strategy", s.Name(), "signature", entry.ID)
		return model.Detection{
			Detected:   true,
			Details:    fmt.Sprintf("%s detected", entry.Name),
			Confidence: entry.Severity.DetectorConfidence(),
			Severity:   entry.Severity,
		}, nil
	}

	return model.NoDetection, ctx.Err()
}

func (d *Detector) decode(data []byte) *pixel.Grid {
	grid, err := pixel.Decode(data)
	if err != nil {
		d.logger.Debug("pixel extraction skipped", "error", err)
		return nil
	}
	return grid
}

// Scan runs Detect and converts a positive result into a threat list.
func (d *Detector) Scan(ctx context.Context, data []byte) ([]model.Threat, error) {
	return d.ScanGrid(ctx, data, d.decode(data))
}

// ScanGrid is Scan over pixels the caller already decoded from data.
func (d *Detector) ScanGrid(ctx context.Context, data []byte, grid *pixel.Grid) ([]model.Threat, error) {
	detection, err := d.DetectGrid(ctx, data, grid)
	if err != nil {
		return nil, err
	}
	if !detection.Detected {
		return nil, nil
	}
	return []model.Threat{
		model.NewThreat(model.ThreatMaliciousCode, detection.Details, detection.ThreatSeverity()),
	}, nil
}
