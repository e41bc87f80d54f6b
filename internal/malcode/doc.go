// Package malcode detects script and executable payloads carried as text
// inside an image.
//
// Text is pulled out by pluggable TextExtractionStrategy implementations
// and checked against the signature table after each one:
//   - OCRStrategy: visible text, through an injected OCREngine
//   - BitPlaneStrategy: blue-channel least significant bits decoded to ASCII
//   - FrameStrategy: comments, extensions and later frames of GIF files
package malcode
