package stego

import (
	"context"
	"log/slog"

	"github.com/nao1215/imgguard/internal/model"
	"github.com/nao1215/imgguard/internal/pixel"
)

// Input is what a strategy inspects. Grid is nil when the bytes could
// not be decoded as an image.
type Input struct {
	Data []byte
	Grid *pixel.Grid
}

// Strategy is one steganography test.
type Strategy interface {
	// Name returns a short identifier used in logs.
	Name() string

	// NeedsPixels reports whether the strategy requires a decoded Grid.
	NeedsPixels() bool

	// Detect runs the test. It must not modify in.
	Detect(ctx context.Context, in *Input) (model.Detection, error)
}

// Detector runs steganography strategies in order; the first positive wins.
type Detector struct {
	strategies []Strategy
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

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(d *Detector) {
		d.strategies = strategies
	}
}

// DefaultStrategies returns LSBTest, HistogramTest and SignatureScan with
// their standard thresholds.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewLSBTest(),
		NewHistogramTest(),
		NewSignatureScan(),
	}
}

// NewDetector creates a Detector with the default strategies.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect inspects data and returns the first positive detection.
// A strategy error is logged and the next strategy runs. The only error
// returned is the context's.
func (d *Detector) Detect(ctx context.Context, data []byte) (model.Detection, error) {
	return d.DetectGrid(ctx, data, d.decode(data))
}

// DetectGrid is Detect over pixels the caller already decoded from data.
// A nil grid skips the pixel strategies.
func (d *Detector) DetectGrid(ctx context.Context, data []byte, grid *pixel.Grid) (model.Detection, error) {
	in := &Input{Data: data, Grid: grid}

	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return model.NoDetection, err
		}
		if s.NeedsPixels() && in.Grid == nil {
			continue
		}

		detection, err := s.Detect(ctx, in)
		if err != nil {
			d.logger.Warn("steganography strategy failed", "strategy", s.Name(), "error", err)
			continue
		}
		if detection.Detected {
			d.logger.Debug("steganography detected",
				"strategy", s.Name(),
				"details", detection.Details,
				"confidence", detection.Confidence)
			return detection, nil
		}
	}

	return model.NoDetection, nil
}

func (d *Detector) decode(data []byte) *pixel.Grid {
	grid, err := pixel.Decode(data)
	if err != nil {
		d.logger.Debug("pixel strategies skipped", "error", err)
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
		model.NewThreat(model.ThreatSteganography, detection.Details, detection.ThreatSeverity()),
	}, nil
}
