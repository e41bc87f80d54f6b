// Package stego detects data hidden in an image.
//
// The Detector runs a list of strategies and reports the first positive:
//   - LSBTest: least-significant-bit distribution of sampled pixels
//   - HistogramTest: comb patterns in the per-channel intensity histogram
//   - SignatureScan: container magic numbers appended after the image header
//
// Pixel strategies are skipped when the bytes cannot be decoded as an
// image; SignatureScan always runs on the raw bytes.
package stego
