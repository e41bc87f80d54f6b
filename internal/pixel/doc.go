// Package pixel decodes image bytes into a flat RGBA grid and provides the
// sampling helpers shared by every detector.
//
// Bit-plane decoding lives here so the steganography, code and link
// detectors read hidden bits the same way: pixels in row-major order,
// channels in R, G, B order, bits packed most-significant first.
package pixel
