package stego

import (
	"context"
	"fmt"
	"math"

	"github.com/nao1215/imgguard/internal/model"
)

const (
	// DefaultLSBSampleSize bounds the number of pixels sampled.
	DefaultLSBSampleSize = 10_000

	// DefaultLSBThreshold is the deviation of the zero-bit fraction from
	// 0.5 above which the image is flagged. The comparison is exclusive.
	DefaultLSBThreshold = 0.10

	// lsbConfidenceScale converts deviation into confidence.
	lsbConfidenceScale = 5.0
)

// LSBTest flags images whose sampled R, G and B least significant bits
// deviate from an even split of zeros and ones.
type LSBTest struct {
	sampleSize int
	threshold  float64
}

// NewLSBTest creates an LSBTest with the default sample size and threshold.
func NewLSBTest() *LSBTest {
	return &LSBTest{
		sampleSize: DefaultLSBSampleSize,
		threshold:  DefaultLSBThreshold,
	}
}

// Name implements Strategy.
func (t *LSBTest) Name() string { return "lsb_distribution" }

// NeedsPixels implements Strategy.
func (t *LSBTest) NeedsPixels() bool { return true }

// ZeroFraction returns the fraction of zero least significant bits over
// the sampled R, G and B channels.
func (t *LSBTest) ZeroFraction(in *Input) float64 {
	samples := in.Grid.Sample(t.sampleSize)
	if len(samples) == 0 {
		return 0.5
	}

	zeros := 0
	for _, p := range samples {
		zeros += int(1 - p.R&1)
		zeros += int(1 - p.G&1)
		zeros += int(1 - p.B&1)
	}
	return float64(zeros) / float64(len(samples)*3)
}

// Detect implements Strategy.
func (t *LSBTest) Detect(_ context.Context, in *Input) (model.Detection, error) {
	zeroFraction := t.ZeroFraction(in)
	deviation := math.Abs(zeroFraction - 0.5)
	if deviation <= t.threshold {
		return model.NoDetection, nil
	}

	return model.Detection{
		Detected:   true,
		Details:    fmt.Sprintf("Abnormal LSB distribution detected (%.1f%% zero bits)", zeroFraction*100),
		Confidence: math.Min(1.0, deviation*lsbConfidenceScale),
	}, nil
}

var _ Strategy = (*LSBTest)(nil)
