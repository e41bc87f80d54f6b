package stego

import (
	"context"
	"fmt"
	"math"

	"github.com/nao1215/imgguard/internal/model"
)

const (
	// DefaultCombThreshold is the normalized anomaly score above which
	// the histogram is flagged.
	DefaultCombThreshold = 0.3

	// combPairDifference is the relative difference an adjacent bin pair
	// must exceed to count as an anomaly.
	combPairDifference = 0.5

	// combPairsPerChannel is the number of adjacent pairs compared in each
	// channel: bins (0,1) through (253,254).
	combPairsPerChannel = 254

	combConfidenceScale = 2.0
)

// HistogramTest flags comb-shaped intensity histograms, where adjacent
// bins alternate between full and sparse. Embedding data in the low bits
// of a smooth image tends to produce this pattern.
type HistogramTest struct {
	threshold float64
}

// NewHistogramTest creates a HistogramTest with the default threshold.
func NewHistogramTest() *HistogramTest {
	return &HistogramTest{threshold: DefaultCombThreshold}
}

// Name implements Strategy.
func (t *HistogramTest) Name() string { return "histogram_comb" }

// NeedsPixels implements Strategy.
func (t *HistogramTest) NeedsPixels() bool { return true }

// Histograms returns the 256-bin R, G and B histograms over every pixel.
func Histograms(in *Input) [3][256]int {
	var h [3][256]int
	pix := in.Grid.Pix
	for o := 0; o+3 < len(pix); o += 4 {
		h[0][pix[o]]++
		h[1][pix[o+1]]++
		h[2][pix[o+2]]++
	}
	return h
}

// Score returns the fraction of adjacent bin pairs whose relative
// difference exceeds 0.5, over all three channels.
func (t *HistogramTest) Score(in *Input) float64 {
	h := Histograms(in)

	anomalies := 0
	for c := 0; c < 3; c++ {
		for i := 0; i < combPairsPerChannel; i++ {
			if relativeDifference(h[c][i], h[c][i+1]) > combPairDifference {
				anomalies++
			}
		}
	}
	return float64(anomalies) / float64(3*combPairsPerChannel)
}

// relativeDifference returns |a-b| / max(a, b), or 0 when both are empty.
func relativeDifference(a, b int) float64 {
	high := max(a, b)
	if high == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(high)
}

// Detect implements Strategy.
func (t *HistogramTest) Detect(_ context.Context, in *Input) (model.Detection, error) {
	score := t.Score(in)
	if score <= t.threshold {
		return model.NoDetection, nil
	}

	return model.Detection{
		Detected:   true,
		Details:    fmt.Sprintf("Histogram comb anomaly detected (score %.2f)", score),
		Confidence: math.Min(1.0, score*combConfidenceScale),
	}, nil
}

var _ Strategy = (*HistogramTest)(nil)
